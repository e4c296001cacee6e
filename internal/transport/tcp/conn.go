// Package tcp provides TCP transport implementation for the relay.
package tcp

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/omochice/bridge-chat/pkg/protocol"
)

// Conn adapts net.Conn to chat.Conn interface.
type Conn struct {
	conn      net.Conn
	framer    *protocol.Framer
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return NewConnWithReader(conn, conn)
}

// NewConnWithReader wraps a net.Conn whose first bytes were already consumed
// into r, e.g. a bufio.Reader used for protocol detection.
func NewConnWithReader(conn net.Conn, r io.Reader) *Conn {
	return &Conn{
		conn:   conn,
		framer: protocol.NewFramer(r, conn),
	}
}

// ReadLine implements chat.Conn.
// Blocks until a full line arrives; unblock it by closing the connection.
func (c *Conn) ReadLine(ctx context.Context) ([]byte, error) {
	return c.framer.ReadLine()
}

// Buffer implements chat.Conn.
func (c *Conn) Buffer(data []byte) {
	c.framer.Buffer(data)
}

// Flush implements chat.Conn.
// The context deadline, if any, becomes the write deadline.
func (c *Conn) Flush(ctx context.Context) error {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.framer.Flush()
}

// Buffered returns the number of bytes waiting to be flushed.
func (c *Conn) Buffered() int {
	return c.framer.Buffered()
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
