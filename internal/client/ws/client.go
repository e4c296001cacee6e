// Package ws provides a WebSocket client for the relay.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/bridge-chat/pkg/protocol"
)

// ErrNotConnected is returned when sending before Connect or after Disconnect.
var ErrNotConnected = errors.New("not connected to server")

// Client represents a WebSocket relay client. Every sent line travels in
// its own text frame; received frames are joined into one line stream.
type Client struct {
	address  string
	username string
	logger   *slog.Logger
	conn     net.Conn
	messages chan protocol.Message
	mu       sync.RWMutex
	writeMu  sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new WebSocket Client instance. address is a ws:// URL.
func New(address, username string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		address:  address,
		username: username,
		logger:   logger.With("component", "ws-client", "server", address),
		messages: make(chan protocol.Message, 10),
		done:     make(chan struct{}),
	}
}

// Connect performs the WebSocket handshake with the server.
func (c *Client) Connect(ctx context.Context) error {
	conn, br, _, err := ws.Dial(ctx, c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	// Frames the server sent right after the handshake may sit in br.
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveMessages(&frameReader{rw: struct {
		io.Reader
		io.Writer
	}{r, &lockedWriter{mu: &c.writeMu, w: conn}}})

	return nil
}

// Disconnect sends a close frame and closes the connection.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.writeMu.Lock()
			body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
			_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
			c.writeMu.Unlock()
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Join sends the username as the first line.
func (c *Client) Join() error {
	return c.send(c.username)
}

// SendMessage sends one line of text to the server.
func (c *Client) SendMessage(content string) error {
	return c.send(content)
}

// Messages returns the channel for receiving messages.
func (c *Client) Messages() <-chan protocol.Message {
	return c.messages
}

func (c *Client) send(line string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientText(conn, protocol.Line(line)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) receiveMessages(r io.Reader) {
	defer c.wg.Done()
	defer close(c.messages)

	framer := protocol.NewFramer(bufio.NewReader(r), nil)
	for {
		line, err := framer.ReadLine()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, io.EOF) {
					c.logger.Warn("error reading from server", "error", err)
				}
			}
			return
		}

		select {
		case c.messages <- protocol.ParseMessage(line):
		case <-c.done:
			return
		}
	}
}

// frameReader exposes the payloads of successive server data frames as one
// byte stream. Control frames are answered through rw.
type frameReader struct {
	rw      io.ReadWriter
	pending []byte
}

func (f *frameReader) Read(p []byte) (int, error) {
	for len(f.pending) == 0 {
		data, _, err := wsutil.ReadServerData(f.rw)
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return 0, io.EOF
			}
			return 0, err
		}
		f.pending = data
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// lockedWriter serialises control frame replies with outgoing text frames.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
