package client

import (
	"context"
	"errors"
	"time"

	"github.com/pingpong/pkg/config"
	"github.com/pingpong/pkg/logging"
	"github.com/pingpong/pkg/mesh"
	"github.com/pingpong/pkg/metrics"
	"github.com/pingpong/pkg/peer"
	"github.com/pingpong/pkg/protocol"
	"github.com/rs/zerolog"
)

// DefaultInterval is the pause between probe cycles when none is configured.
const DefaultInterval = 5 * time.Second

// Prober periodically sends PING to a fixed list of peers and logs each reply.
type Prober struct {
	peers       []peer.Spec
	interval    time.Duration
	dialTimeout time.Duration
	readTimeout time.Duration

	log       zerolog.Logger
	collector *metrics.Collector
}

// ioError marks a failure after the link was established.
type ioError struct {
	remote string
	reason string
	err    error
}

func (e *ioError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *ioError) Unwrap() error { return e.err }

// NewProber parses specs (host[:port[:name]]) into the ordered peer list.
// A malformed spec fails with *peer.ParseError.
func NewProber(cfg *config.Config, specs []string) (*Prober, error) {
	peers, err := peer.ParseAll(specs)
	if err != nil {
		return nil, err
	}
	interval := cfg.GetProbeInterval()
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Prober{
		peers:       peers,
		interval:    interval,
		dialTimeout: cfg.GetDialTimeout(),
		readTimeout: cfg.GetClientReadTimeout(),
		log:         logging.Component("CLIENT"),
	}, nil
}

// SetCollector attaches a metrics collector.
func (p *Prober) SetCollector(c *metrics.Collector) {
	p.collector = c
}

// Peers returns the parsed peer list in probe order.
func (p *Prober) Peers() []peer.Spec {
	return append([]peer.Spec(nil), p.peers...)
}

// Run probes every peer, sleeps for the interval and repeats until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.log.Info().Msg("starting pings")
	for {
		p.ProbeAll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// ProbeAll probes each peer once, in order. Failures are logged and never
// stop the pass.
func (p *Prober) ProbeAll(ctx context.Context) {
	for _, spec := range p.peers {
		if ctx.Err() != nil {
			return
		}
		p.probe(ctx, spec)
	}
}

func (p *Prober) probe(ctx context.Context, spec peer.Spec) {
	var rtt time.Duration
	err := mesh.Dial(ctx, spec.Address(), p.dialTimeout, func(link mesh.LinkInfo) error {
		p.log.Info().Msgf("sending ping to %s", spec.Name)
		if err := protocol.Write(link.Conn, protocol.Ping, p.readTimeout); err != nil {
			return &ioError{remote: link.RemoteAddr, reason: metrics.ReasonWrite, err: err}
		}

		reply, err := protocol.ReadOnce(link.Conn, p.readTimeout)
		if err != nil {
			return &ioError{remote: link.RemoteAddr, reason: metrics.ReasonRead, err: err}
		}
		rtt = time.Since(link.ConnectedAt)
		p.log.Info().Msgf("%s says %s", spec.Name, protocol.Render(reply))
		return nil
	})
	if err == nil {
		p.collector.RecordProbe(spec.Name, rtt)
		return
	}

	var dialErr *mesh.DialError
	var ioErr *ioError
	switch {
	case errors.As(err, &dialErr) && dialErr.Refused():
		p.collector.RecordProbeFailure(spec.Name, metrics.ReasonRefused)
		p.log.Warn().Msgf("%s:%d ConnectionRefusedError", spec.Host, spec.Port)
	case errors.As(err, &dialErr):
		p.collector.RecordProbeFailure(spec.Name, metrics.ReasonDial)
		p.log.Warn().Msgf("%s:%d %v", spec.Host, spec.Port, dialErr.Err)
	case errors.As(err, &ioErr):
		p.collector.RecordProbeFailure(spec.Name, ioErr.reason)
		p.log.Debug().Err(ioErr.err).Msgf("%s %s failed (remote=%s)", spec.Name, ioErr.reason, ioErr.remote)
	}
}
