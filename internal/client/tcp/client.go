// Package tcp provides a raw TCP client for the relay.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/omochice/bridge-chat/pkg/protocol"
)

// ErrNotConnected is returned when sending before Connect or after Disconnect.
var ErrNotConnected = errors.New("not connected to server")

// Client represents a TCP relay client
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

// New creates a new Client instance
func New(address, username string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		address:  address,
		username: username,
		logger:   logger.With("component", "tcp-client", "server", address),
		messages: make(chan protocol.Message, 10),
		done:     make(chan struct{}),
	}
}

// Connect establishes a connection to the server
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveMessages(conn)

	return nil
}

// Disconnect closes the connection to the server
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Join sends the username as the first line
func (c *Client) Join() error {
	return c.send(c.username)
}

// SendMessage sends one line of text to the server
func (c *Client) SendMessage(content string) error {
	return c.send(content)
}

// Messages returns the channel for receiving messages
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
	if _, err := conn.Write(protocol.Line(line)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// receiveMessages reads relayed lines until the connection ends.
func (c *Client) receiveMessages(conn net.Conn) {
	defer c.wg.Done()
	defer close(c.messages)

	framer := protocol.NewFramer(conn, nil)
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
