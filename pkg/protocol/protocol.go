package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
	"unicode/utf8"
)

// MaxMessage is the most bytes taken from a single read.
const MaxMessage = 1024

var (
	Ping = []byte("PING")
	Pong = []byte("PONG")
)

// ReadOnce performs one read of up to MaxMessage bytes. A short read is
// returned as-is. io.EOF with no data is reported as an empty message.
// A non-zero timeout sets a read deadline first.
func ReadOnce(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, MaxMessage)
	n, err := conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:0], nil
}

// Write sends payload with an optional write deadline.
func Write(conn net.Conn, payload []byte, timeout time.Duration) error {
	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	_, err := conn.Write(payload)
	return err
}

// Render returns b as text when it is valid UTF-8, otherwise as a quoted
// byte string so undecodable payloads still show up in logs.
func Render(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return fmt.Sprintf("%q", b)
}
