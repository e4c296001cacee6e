// Package server accepts peer connections for the relay. A Server serves
// one pool's listener; a Relay runs the two Servers of a bridge.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/omochice/bridge-chat/internal/bridge"
	"github.com/omochice/bridge-chat/internal/chat"
	"github.com/omochice/bridge-chat/internal/transport/tcp"
	"github.com/omochice/bridge-chat/internal/transport/ws"
)

// Options configures how accepted connections are served.
type Options struct {
	// Agent is passed to every Agent the Server spawns.
	Agent chat.AgentConfig

	// WebSocket enables WebSocket upgrades on the pool listener.
	WebSocket bool

	Logger *slog.Logger
}

// Server accepts connections on one pool's listener and runs one Agent per
// connection, bound to the pool's bridge side.
type Server struct {
	side     bridge.Side
	opts     Options
	logger   *slog.Logger
	listener net.Listener
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Server for one side of a bridge.
func New(side bridge.Side, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "server", "pool", side.Name())
	if opts.Agent.Logger == nil {
		opts.Agent.Logger = opts.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		side:   side,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		quit:   make(chan struct{}),
	}
}

// Serve accepts connections on ln until Stop is called or ln fails.
// It returns nil after Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		ln.Close()
		return nil
	default:
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("pool listening", "addr", ln.Addr().String(), "websocket", s.opts.WebSocket)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("failed to accept connection", "error", err)
			continue
		}

		// Add only while Stop has not begun, so it never races Wait.
		s.mu.Lock()
		select {
		case <-s.quit:
			s.mu.Unlock()
			conn.Close()
			return nil
		default:
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConnection(conn)
	}
}

// Stop closes the listener and terminates every connection of the pool
// without a final broadcast.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
		s.cancel()
	})
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// PeerCount returns the number of named peers in the pool.
func (s *Server) PeerCount() int {
	return s.side.Own.Len()
}

func (s *Server) handleConnection(raw net.Conn) {
	defer s.wg.Done()

	// Unblocks protocol detection and the handshake on Stop.
	stop := context.AfterFunc(s.ctx, func() { raw.Close() })
	defer stop()

	logger := s.logger.With("peer", raw.RemoteAddr().String())
	conn, err := s.wrap(raw)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Warn("failed to set up connection", "error", err)
		}
		raw.Close()
		return
	}

	agent := s.side.Spawn(conn, s.opts.Agent)
	if err := agent.Run(s.ctx); err != nil {
		logger.Warn("connection error", "error", err)
	}
}

// wrap picks the transport for a freshly accepted connection.
func (s *Server) wrap(raw net.Conn) (chat.Conn, error) {
	if !s.opts.WebSocket {
		return tcp.NewConn(raw), nil
	}

	reader := bufio.NewReader(raw)
	proto, err := detectProtocol(reader)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("connection accepted", "peer", raw.RemoteAddr().String(), "protocol", proto)

	if proto == protocolWebSocket {
		return ws.Upgrade(raw, reader)
	}
	return tcp.NewConnWithReader(raw, reader), nil
}
