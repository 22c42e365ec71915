/*
Package chat contains the core logic of the line chat service: session state machines, the registry
of joined identities, broadcasting with history replay, and the connection listener.

This file defines the Transport abstraction a Session reads lines from and writes frames to, and
its implementation over a plain stream connection.
*/
package chat

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"
)

const (
	// timeout duration for writing a single frame to the connection.
	writeWait = 10 * time.Second

	// initial read buffer size; the scanner grows it up to the configured line cap.
	initialLineBuffer = 4096
)

// ErrLineTooLong is returned by ReadLine when an inbound line exceeds the configured cap.
var ErrLineTooLong = errors.New("chat: line too long")

// Transport is a bidirectional, line-oriented connection.
// ReadLine is only called from the session read loop and WriteLine only from its write pump.
type Transport interface {
	// ReadLine blocks for the next inbound line, without its terminator.
	ReadLine() (string, error)

	// WriteLine writes one frame followed by a newline.
	WriteLine(line string) error

	// SetReadDeadline bounds the next ReadLine calls; the zero time clears it.
	SetReadDeadline(t time.Time) error

	// Close releases the connection. It is safe to call more than once.
	Close() error

	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}

// ConnTransport implements Transport over a net.Conn.
type ConnTransport struct {
	conn    net.Conn
	scanner *bufio.Scanner
	writer  *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

// NewConnTransport wraps conn. Lines longer than maxLine bytes terminate the connection.
func NewConnTransport(conn net.Conn, maxLine int) *ConnTransport {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(initialLineBuffer, maxLine)), maxLine)

	return &ConnTransport{
		conn:    conn,
		scanner: scanner,
		writer:  bufio.NewWriter(conn),
	}
}

func (t *ConnTransport) ReadLine() (string, error) {
	if t.scanner.Scan() {
		return t.scanner.Text(), nil
	}

	err := t.scanner.Err()
	switch {
	case err == nil:
		return "", net.ErrClosed
	case errors.Is(err, bufio.ErrTooLong):
		return "", ErrLineTooLong
	default:
		return "", err
	}
}

func (t *ConnTransport) WriteLine(line string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	if _, err := t.writer.WriteString(line); err != nil {
		return err
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return err
	}
	return t.writer.Flush()
}

func (t *ConnTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *ConnTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *ConnTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
