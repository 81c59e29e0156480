package metrics

import (
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons recorded by the prober (low cardinality).
const (
	ReasonRefused = "refused"
	ReasonDial    = "dial"
	ReasonWrite   = "write"
	ReasonRead    = "read"
)

// Collector Prometheus metrics collector for the responder and prober loops.
// It only counts events; it keeps no notion of whether a peer is up.
type Collector struct {
	info *prometheus.Desc

	// Prober metrics
	probesTotal       *prometheus.Desc
	probesFailedTotal *prometheus.Desc
	probeRTTSeconds   *prometheus.Desc

	// Responder metrics
	responderConnectionsTotal *prometheus.Desc
	responderMessagesTotal    *prometheus.Desc
	responderErrorsTotal      *prometheus.Desc

	// Counters (protected by mutex)
	metricsLock     sync.RWMutex
	probes          map[string]float64
	probesFailed    map[string]map[string]float64 // peer -> reason -> count
	rttSum          map[string]float64
	rttCount        map[string]uint64
	connections     float64
	messagesByPeer  map[string]float64
	responderErrors map[string]float64
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		info: prometheus.NewDesc(
			"pingpong_info",
			"Process info metric (always 1)",
			[]string{"node"},
			nil,
		),
		probesTotal: prometheus.NewDesc(
			"pingpong_probes_total",
			"Total number of probe attempts by peer display name",
			[]string{"peer", "node"},
			nil,
		),
		probesFailedTotal: prometheus.NewDesc(
			"pingpong_probes_failed_total",
			"Total number of failed probe attempts by peer display name and reason",
			[]string{"peer", "reason", "node"},
			nil,
		),
		probeRTTSeconds: prometheus.NewDesc(
			"pingpong_probe_rtt_seconds",
			"PING/PONG round trip in seconds, as running sum and count",
			[]string{"peer", "node"},
			nil,
		),
		responderConnectionsTotal: prometheus.NewDesc(
			"pingpong_responder_connections_total",
			"Total number of connections accepted by the responder",
			[]string{"node"},
			nil,
		),
		responderMessagesTotal: prometheus.NewDesc(
			"pingpong_responder_messages_total",
			"Total number of non-empty messages received by the responder, by peer display name",
			[]string{"peer", "node"},
			nil,
		),
		responderErrorsTotal: prometheus.NewDesc(
			"pingpong_responder_errors_total",
			"Total number of responder connection errors by reason",
			[]string{"reason", "node"},
			nil,
		),
		probes:          make(map[string]float64),
		probesFailed:    make(map[string]map[string]float64),
		rttSum:          make(map[string]float64),
		rttCount:        make(map[string]uint64),
		messagesByPeer:  make(map[string]float64),
		responderErrors: make(map[string]float64),
	}
}

// RecordProbe records a successful PING/PONG exchange.
func (c *Collector) RecordProbe(peer string, rtt time.Duration) {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.probes[peer]++
	c.rttSum[peer] += rtt.Seconds()
	c.rttCount[peer]++
}

// RecordProbeFailure records a failed probe attempt.
func (c *Collector) RecordProbeFailure(peer, reason string) {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.probes[peer]++
	if _, ok := c.probesFailed[peer]; !ok {
		c.probesFailed[peer] = make(map[string]float64)
	}
	c.probesFailed[peer][reason]++
}

// RecordConnection records a connection accepted by the responder.
func (c *Collector) RecordConnection() {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.connections++
}

// RecordMessage records a non-empty message received by the responder.
func (c *Collector) RecordMessage(peer string) {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.messagesByPeer[peer]++
}

// RecordResponderError records a per-connection responder error.
func (c *Collector) RecordResponderError(reason string) {
	if c == nil {
		return
	}
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.responderErrors[reason]++
}

// Describe implements prometheus.Collector interface
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.info
	ch <- c.probesTotal
	ch <- c.probesFailedTotal
	ch <- c.probeRTTSeconds
	ch <- c.responderConnectionsTotal
	ch <- c.responderMessagesTotal
	ch <- c.responderErrorsTotal
}

// Collect implements prometheus.Collector interface
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	node := nodeName()

	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, node)

	c.metricsLock.RLock()
	defer c.metricsLock.RUnlock()

	for peer, v := range c.probes {
		ch <- prometheus.MustNewConstMetric(c.probesTotal, prometheus.CounterValue, v, peer, node)
	}
	for peer, byReason := range c.probesFailed {
		for reason, v := range byReason {
			ch <- prometheus.MustNewConstMetric(c.probesFailedTotal, prometheus.CounterValue, v, peer, reason, node)
		}
	}
	for peer, n := range c.rttCount {
		ch <- prometheus.MustNewConstSummary(c.probeRTTSeconds, n, c.rttSum[peer], nil, peer, node)
	}

	ch <- prometheus.MustNewConstMetric(c.responderConnectionsTotal, prometheus.CounterValue, c.connections, node)
	for peer, v := range c.messagesByPeer {
		ch <- prometheus.MustNewConstMetric(c.responderMessagesTotal, prometheus.CounterValue, v, peer, node)
	}
	for reason, v := range c.responderErrors {
		ch <- prometheus.MustNewConstMetric(c.responderErrorsTotal, prometheus.CounterValue, v, reason, node)
	}
}

// nodeName identifies this process in metric labels.
func nodeName() string {
	if name := os.Getenv("NODE_NAME"); name != "" {
		return name
	}
	if name, _ := os.Hostname(); name != "" {
		return name
	}
	return "unknown"
}
