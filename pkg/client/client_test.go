package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pingpong/pkg/config"
	"github.com/pingpong/pkg/logging"
	"github.com/pingpong/pkg/metrics"
	"github.com/pingpong/pkg/peer"
	"github.com/pingpong/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Client.DialTimeout = 1
	cfg.Client.ReadTimeout = 2
	return cfg
}

func newTestProber(t *testing.T, specs ...string) (*Prober, *syncBuffer) {
	t.Helper()
	p, err := NewProber(testConfig(), specs)
	require.NoError(t, err)
	logs := &syncBuffer{}
	p.log = logging.New(logs, true)
	return p, logs
}

// startPongServer runs a real responder on loopback and returns its port.
func startPongServer(t *testing.T) int {
	t.Helper()
	logging.SetOutput(io.Discard, "error")
	cfg := &config.Config{Server: config.ServerConfig{BindHost: "127.0.0.1"}}
	r := server.NewResponder(cfg, nil)
	ln, err := r.Listen()
	require.NoError(t, err)
	go r.Serve(ln)
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

// startReplyServer accepts connections and answers each with reply.
func startReplyServer(t *testing.T, reply []byte) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Read(make([]byte, 1024))
			if len(reply) > 0 {
				_, _ = conn.Write(reply)
			}
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func spec(port int, name string) string {
	return "127.0.0.1:" + strconv.Itoa(port) + ":" + name
}

func TestNewProber(t *testing.T) {
	p, err := NewProber(testConfig(), []string{"ip.add.re.ss", "ip.add.re.ss:8080:MyHost", "ip.add.re.ss"})
	require.NoError(t, err)
	assert.Equal(t, []peer.Spec{
		{Host: "ip.add.re.ss", Port: 80, Name: "ip.add.re.ss"},
		{Host: "ip.add.re.ss", Port: 8080, Name: "MyHost"},
		{Host: "ip.add.re.ss", Port: 80, Name: "ip.add.re.ss"},
	}, p.Peers())
	assert.Equal(t, 5*time.Second, p.interval)

	_, err = NewProber(testConfig(), []string{"host:eighty"})
	var perr *peer.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestProbeAll_RefusedAndLivePeer(t *testing.T) {
	dead := closedPort(t)
	live := startPongServer(t)

	p, logs := newTestProber(t, spec(dead, "dead"), spec(live, "live"))
	collector := metrics.NewCollector()
	p.SetCollector(collector)

	p.ProbeAll(context.Background())

	out := logs.String()
	assert.Contains(t, out, "WRN 127.0.0.1:"+strconv.Itoa(dead)+" ConnectionRefusedError")
	assert.Contains(t, out, "sending ping to live")
	assert.Contains(t, out, "live says PONG")
	assert.NotContains(t, out, "sending ping to dead")
	assert.Less(t, strings.Index(out, "ConnectionRefusedError"), strings.Index(out, "sending ping to live"))

	families, err := metrics.NewRegistry(collector).Gather()
	require.NoError(t, err)
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		if mf.GetName() != "pingpong_probe_rtt_seconds" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		summary := mf.GetMetric()[0].GetSummary()
		assert.Equal(t, uint64(1), summary.GetSampleCount())
		assert.Greater(t, summary.GetSampleSum(), 0.0)
	}
	assert.True(t, found["pingpong_probes_failed_total"])
	assert.True(t, found["pingpong_probe_rtt_seconds"])
}

func TestProbeAll_ReadTimeoutLogsRemote(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	held := make(chan net.Conn, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			held <- conn
		}
	}()
	t.Cleanup(func() {
		select {
		case conn := <-held:
			conn.Close()
		default:
		}
	})

	port := ln.Addr().(*net.TCPAddr).Port
	p, logs := newTestProber(t, spec(port, "mute"))
	p.readTimeout = 200 * time.Millisecond

	p.ProbeAll(context.Background())

	out := logs.String()
	assert.Contains(t, out, "mute read failed (remote=127.0.0.1:"+strconv.Itoa(port)+")")
	assert.NotContains(t, out, "mute says")
}

func TestProbeAll_DialErrorIsNotFatal(t *testing.T) {
	live := startPongServer(t)
	p, logs := newTestProber(t, "127.0.0.1:-1:broken", spec(live, "live"))

	p.ProbeAll(context.Background())

	out := logs.String()
	assert.Contains(t, out, "WRN 127.0.0.1:-1 ")
	assert.NotContains(t, out, "ConnectionRefusedError")
	assert.Contains(t, out, "live says PONG")
}

func TestProbeAll_UndecodableReply(t *testing.T) {
	port := startReplyServer(t, []byte{0xff, 0xfe})
	p, logs := newTestProber(t, spec(port, "odd"))

	p.ProbeAll(context.Background())
	assert.Contains(t, logs.String(), `odd says "\xff\xfe"`)
}

func TestProbeAll_EmptyReply(t *testing.T) {
	port := startReplyServer(t, nil)
	p, logs := newTestProber(t, spec(port, "quiet"))

	p.ProbeAll(context.Background())
	assert.Contains(t, logs.String(), "quiet says ")
}

func TestProbeAll_StopsWhenContextDone(t *testing.T) {
	live := startPongServer(t)
	p, logs := newTestProber(t, spec(live, "live"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.ProbeAll(ctx)
	assert.NotContains(t, logs.String(), "sending ping")
}

// messages strips the timestamp column from every log line containing substr.
func messages(out, substr string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, substr) {
			continue
		}
		if len(line) > len(logging.TimeFormat) {
			line = line[len(logging.TimeFormat):]
		}
		lines = append(lines, line)
	}
	return lines
}

func TestRun_RepeatsCyclesWithIdenticalOutput(t *testing.T) {
	dead := closedPort(t)
	live := startPongServer(t)
	p, logs := newTestProber(t, spec(dead, "dead"), spec(live, "live"))
	p.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Count(logs.String(), "live says PONG") >= 3
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	out := logs.String()
	assert.Equal(t, 1, strings.Count(out, "starting pings"))

	says := messages(out, "live says")
	require.GreaterOrEqual(t, len(says), 3)
	for _, line := range says[1:] {
		assert.Equal(t, says[0], line)
	}

	refused := messages(out, "ConnectionRefusedError")
	require.GreaterOrEqual(t, len(refused), 3)
	for _, line := range refused[1:] {
		assert.Equal(t, refused[0], line)
	}
}
