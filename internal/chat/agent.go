package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/bridge-chat/pkg/protocol"
)

// DefaultTickBudget is the number of queued messages an Agent moves into its
// write buffer before flushing and rescheduling itself.
const DefaultTickBudget = 10

// State is the lifecycle stage of an Agent.
type State int32

const (
	StateAwaitingName State = iota
	StateActive
	StateTerminated
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateAwaitingName:
		return "awaiting-name"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// AgentConfig tunes an Agent. The zero value is usable.
type AgentConfig struct {
	// TickBudget caps how many queued messages are written per flush.
	// Zero or negative means DefaultTickBudget.
	TickBudget int

	// WriteTimeout bounds a single flush. Zero disables the bound.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Agent relays one peer connection. It registers itself in its own pool's
// registry and broadcasts every line it reads to the target pool's registry.
type Agent struct {
	conn     Conn
	id       string
	name     string
	own      *Registry
	target   *Registry
	outbox   *Outbox
	budget   int
	timeout  time.Duration
	state    atomic.Int32
	received atomic.Uint64
	logger   *slog.Logger
}

// NewAgent creates an Agent for conn. own is the registry the peer joins;
// target is the registry its lines are broadcast to.
func NewAgent(conn Conn, own, target *Registry, cfg AgentConfig) *Agent {
	if cfg.TickBudget <= 0 {
		cfg.TickBudget = DefaultTickBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	id := conn.RemoteAddr()
	return &Agent{
		conn:    conn,
		id:      id,
		own:     own,
		target:  target,
		outbox:  NewOutbox(),
		budget:  cfg.TickBudget,
		timeout: cfg.WriteTimeout,
		logger: cfg.Logger.With(
			"component", "agent",
			"pool", own.Name(),
			"peer", id,
			"session", uuid.NewString(),
		),
	}
}

// ID returns the identity the Agent registers under.
func (a *Agent) ID() string {
	return a.id
}

// Name returns the peer name, empty until the first line arrives.
// Only valid to call after Run has returned or from the Agent itself.
func (a *Agent) Name() string {
	return a.name
}

// State returns the current lifecycle stage.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Received returns how many lines have been read after the name.
func (a *Agent) Received() uint64 {
	return a.received.Load()
}

// Run serves the connection until the peer disconnects, an I/O error
// occurs, or ctx is cancelled. The connection is always closed and the
// peer is always removed from its pool when Run returns. A peer that
// disconnects, or is cancelled, is not an error.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.state.Store(int32(StateTerminated))
	defer a.conn.Close()

	// Closing the connection is the only way to interrupt a blocked read.
	context.AfterFunc(ctx, func() {
		_ = a.conn.Close()
	})

	name, err := a.conn.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			a.logger.Debug("peer left before sending a name")
			return nil
		}
		return fmt.Errorf("reading name: %w", err)
	}
	a.name = string(name)

	defer a.outbox.Close()
	if err := a.own.Register(a.id, a.outbox); err != nil {
		return fmt.Errorf("joining pool: %w", err)
	}
	defer a.own.Unregister(a.id)

	a.state.Store(int32(StateActive))
	a.logger.Info("peer joined", "name", a.name)

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		return a.readLoop(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return a.writeLoop(ctx)
	})
	err = g.Wait()

	if err != nil {
		a.logger.Warn("peer dropped", "name", a.name, "error", err)
	} else {
		a.logger.Info("peer left", "name", a.name, "lines", a.Received())
	}
	return err
}

// readLoop broadcasts every line read from the peer until end of stream.
func (a *Agent) readLoop(ctx context.Context) error {
	for {
		line, err := a.conn.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading line: %w", err)
		}
		a.received.Add(1)
		a.logger.Debug("line received", "name", a.name, "bytes", len(line))
		a.broadcast(protocol.Format([]byte(a.name), line))
	}
}

// broadcast pushes msg to every peer of the target pool except this one.
func (a *Agent) broadcast(msg []byte) {
	for _, peer := range a.target.Snapshot() {
		if peer.ID == a.id {
			continue
		}
		peer.Outbox.Push(msg)
	}
}

// writeLoop moves queued messages to the connection, at most budget
// messages per flush.
func (a *Agent) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.outbox.Ready():
		}

		msgs, more := a.outbox.Drain(a.budget)
		for _, msg := range msgs {
			a.conn.Buffer(msg)
		}
		if err := a.flush(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("flushing: %w", err)
		}
		if more {
			a.outbox.Wake()
		}
	}
}

func (a *Agent) flush(ctx context.Context) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.conn.Flush(ctx)
}
