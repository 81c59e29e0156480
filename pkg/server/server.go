package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pingpong/pkg/config"
	"github.com/pingpong/pkg/logging"
	"github.com/pingpong/pkg/metrics"
	"github.com/pingpong/pkg/peer"
	"github.com/pingpong/pkg/protocol"
	"github.com/pires/go-proxyproto"
	"github.com/rs/zerolog"
)

// BindError reports that the responder could not acquire its listening port.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Accept failures back off between these bounds, doubling each time.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Responder answers every inbound connection with PONG, one connection at a time.
type Responder struct {
	addr          string
	names         peer.NameTable
	ioTimeout     time.Duration
	proxyProtocol bool

	log       zerolog.Logger
	collector *metrics.Collector
}

// NewResponder creates a responder for cfg. names may be nil, in which case
// raw peer addresses are logged.
func NewResponder(cfg *config.Config, names peer.NameTable) *Responder {
	return &Responder{
		addr:          cfg.BindAddr(),
		names:         names,
		ioTimeout:     cfg.GetServerReadTimeout(),
		proxyProtocol: cfg.Server.ProxyProtocol,
		log:           logging.Component("SERVER"),
	}
}

// SetCollector attaches a metrics collector.
func (r *Responder) SetCollector(c *metrics.Collector) {
	r.collector = c
}

// Listen binds the listening socket with address reuse enabled.
func (r *Responder) Listen() (net.Listener, error) {
	lc := net.ListenConfig{Control: controlReuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", r.addr)
	if err != nil {
		return nil, &BindError{Addr: r.addr, Err: err}
	}
	if r.proxyProtocol {
		ln = &proxyproto.Listener{Listener: ln, ReadHeaderTimeout: 5 * time.Second}
	}
	r.log.Debug().Msgf("[listen] addr=%s proxy_protocol=%v", ln.Addr(), r.proxyProtocol)
	return ln, nil
}

// ListenAndServe binds and then serves forever. Only a bind failure is returned.
func (r *Responder) ListenAndServe() error {
	ln, err := r.Listen()
	if err != nil {
		return err
	}
	return r.Serve(ln)
}

// Serve accepts connections from ln serially until ln is closed.
// Per-connection failures never stop the loop.
func (r *Responder) Serve(ln net.Listener) error {
	r.log.Info().Msg("waiting for connections")
	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if tempDelay == 0 {
				tempDelay = minAcceptDelay
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxAcceptDelay {
				tempDelay = maxAcceptDelay
			}
			r.log.Warn().Err(err).Msgf("accept failed; retrying in %v", tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0
		r.collector.RecordConnection()
		r.handle(conn)
	}
}

// handle reads one message, logs it, answers PONG and closes conn.
func (r *Responder) handle(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	display, label := r.displayName(conn.RemoteAddr())

	msg, err := protocol.ReadOnce(conn, r.ioTimeout)
	if err != nil {
		r.collector.RecordResponderError(metrics.ReasonRead)
		r.log.Debug().Err(err).Msgf("read failed (remote=%s)", remote)
		return
	}
	if len(msg) > 0 {
		r.collector.RecordMessage(label)
		r.log.Info().Msgf("%s from %s", protocol.Render(msg), display)
	}

	if err := protocol.Write(conn, protocol.Pong, r.ioTimeout); err != nil {
		r.collector.RecordResponderError(metrics.ReasonWrite)
		r.log.Debug().Err(err).Msgf("write failed (remote=%s)", remote)
	}
}

// displayName looks the remote host up in the name table. display falls back
// to the raw address for logging; label falls back to the bare host so that
// ephemeral source ports never become metric label values.
func (r *Responder) displayName(addr net.Addr) (display, label string) {
	raw := addr.String()
	host := raw
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		host = tcpAddr.IP.String()
	} else if h, _, err := net.SplitHostPort(raw); err == nil {
		host = h
	}
	return r.names.Lookup(host, raw), r.names.Lookup(host, host)
}
