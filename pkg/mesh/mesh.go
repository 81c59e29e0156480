package mesh

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// LinkInfo contains connection metadata for a peer link.
type LinkInfo struct {
	Conn        net.Conn
	RemoteAddr  string
	ConnectedAt time.Time
}

// DialError wraps a failed connection attempt.
type DialError struct {
	Addr string
	Err  error
}

func (e *DialError) Error() string {
	return "dial " + e.Addr + ": " + e.Err.Error()
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// Refused reports whether the peer actively refused the connection.
func (e *DialError) Refused() bool {
	return IsRefused(e.Err)
}

// IsRefused reports whether err is a connection-refused condition.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Dial opens one link to addr, hands it to handler and closes it on every
// exit path. A failed connect is returned as *DialError and handler is not
// called.
func Dial(ctx context.Context, addr string, timeout time.Duration, handler func(LinkInfo) error) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &DialError{Addr: addr, Err: err}
	}
	defer conn.Close()

	return handler(LinkInfo{
		Conn:        conn,
		RemoteAddr:  safeRemoteAddr(conn),
		ConnectedAt: time.Now(),
	})
}

func safeRemoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
