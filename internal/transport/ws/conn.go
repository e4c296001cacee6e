// Package ws provides WebSocket transport implementation for the relay.
//
// Frame payloads form one continuous byte stream that carries the same
// CRLF lines as a raw TCP peer; a line may span frames and a frame may
// hold several lines. Outbound flushes are sent as one frame each: a text
// frame when the bytes are valid UTF-8, a binary frame otherwise.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/bridge-chat/pkg/protocol"
)

// MaxFramePayload bounds the payload of a single inbound frame.
const MaxFramePayload = 1 << 20

// closeTimeout bounds the close frame written on Close.
const closeTimeout = time.Second

// ErrFrameTooLarge is returned for frames above MaxFramePayload.
var ErrFrameTooLarge = errors.New("ws: frame payload too large")

// Conn adapts a server-side WebSocket connection to chat.Conn interface.
type Conn struct {
	conn      net.Conn
	stream    *frameStream
	framer    *protocol.Framer
	closeOnce sync.Once
	closeErr  error
}

// Upgrade performs the WebSocket handshake on conn, reading the HTTP
// request through r, and wraps the upgraded connection.
func Upgrade(conn net.Conn, r *bufio.Reader) (*Conn, error) {
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}
	if _, err := ws.Upgrade(rw); err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewConn(conn, r), nil
}

// NewConn wraps an already upgraded connection. Frames are read from r,
// which must read from conn (possibly through a buffer).
func NewConn(conn net.Conn, r io.Reader) *Conn {
	stream := &frameStream{r: r, w: conn}
	return &Conn{
		conn:   conn,
		stream: stream,
		framer: protocol.NewFramer(stream, stream),
	}
}

// ReadLine implements chat.Conn.
func (c *Conn) ReadLine(ctx context.Context) ([]byte, error) {
	return c.framer.ReadLine()
}

// Buffer implements chat.Conn.
func (c *Conn) Buffer(data []byte) {
	c.framer.Buffer(data)
}

// Flush implements chat.Conn.
// Everything buffered goes out as a single frame.
func (c *Conn) Flush(ctx context.Context) error {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.framer.Flush()
}

// Close implements chat.Conn.
// A close frame is sent unless a flush is in progress.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if c.stream.mu.TryLock() {
			_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
			_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
			c.stream.mu.Unlock()
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// frameStream presents the payloads of inbound frames as an io.Reader and
// sends every Write as one data frame.
type frameStream struct {
	r       io.Reader
	w       io.Writer
	mu      sync.Mutex // serialises frames written by the reader and the writer
	pending []byte
}

func (s *frameStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		payload, err := s.nextPayload()
		if err != nil {
			return 0, err
		}
		s.pending = payload
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// nextPayload returns the next non-empty data payload, answering control
// frames on the way. A close frame ends the stream.
func (s *frameStream) nextPayload() ([]byte, error) {
	for {
		hdr, err := ws.ReadHeader(s.r)
		if err != nil {
			return nil, err
		}
		if hdr.Length > MaxFramePayload {
			return nil, ErrFrameTooLarge
		}

		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(s.r, payload); err != nil {
			return nil, err
		}
		if hdr.Masked {
			ws.Cipher(payload, hdr.Mask, 0)
		}

		switch hdr.OpCode {
		case ws.OpPing:
			if err := s.writeFrame(ws.NewPongFrame(payload)); err != nil {
				return nil, err
			}
		case ws.OpPong:
		case ws.OpClose:
			_ = s.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
			return nil, io.EOF
		default:
			if len(payload) > 0 {
				return payload, nil
			}
		}
	}
}

func (s *frameStream) Write(p []byte) (int, error) {
	// Text frames must carry valid UTF-8; raw peers may send any bytes.
	frame := ws.NewTextFrame(p)
	if !utf8.Valid(p) {
		frame = ws.NewBinaryFrame(p)
	}
	if err := s.writeFrame(frame); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *frameStream) writeFrame(f ws.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteFrame(s.w, f)
}
