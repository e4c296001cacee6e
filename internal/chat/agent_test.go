package chat_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/bridge-chat/internal/chat"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

// runAgent starts agent.Run in the background and returns its result channel.
func runAgent(t *testing.T, ctx context.Context, agent *chat.Agent) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- agent.Run(ctx)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitFor):
		t.Fatal("agent did not terminate")
		return nil
	}
}

func TestAgent_JoinsOwnPool(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	conn := newMockConn("10.0.0.1:1000")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})

	assert.Equal(t, chat.StateAwaitingName, agent.State())
	done := runAgent(t, t.Context(), agent)

	conn.send("alice")
	require.Eventually(t, func() bool { return own.Contains("10.0.0.1:1000") }, waitFor, tick)
	assert.Equal(t, chat.StateActive, agent.State())
	assert.Zero(t, target.Len())

	conn.hangUp()
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, "alice", agent.Name())
	assert.Equal(t, chat.StateTerminated, agent.State())
	assert.False(t, own.Contains("10.0.0.1:1000"))
	assert.True(t, conn.isClosed())
}

func TestAgent_NoNameNeverRegisters(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	listener := chat.NewOutbox()
	require.NoError(t, target.Register("10.0.0.9:9", listener))

	conn := newMockConn("10.0.0.1:1000")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})
	done := runAgent(t, t.Context(), agent)

	conn.hangUp()
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, chat.StateTerminated, agent.State())
	assert.Zero(t, own.Len())
	assert.Zero(t, listener.Len())
	assert.True(t, conn.isClosed())
}

func TestAgent_BroadcastsToTargetPool(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	bob, carol := chat.NewOutbox(), chat.NewOutbox()
	require.NoError(t, target.Register("10.0.0.2:2", bob))
	require.NoError(t, target.Register("10.0.0.3:3", carol))

	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})
	done := runAgent(t, t.Context(), agent)

	conn.send("alice")
	conn.send("hello there")
	conn.hangUp()
	require.NoError(t, waitDone(t, done))

	for _, out := range []*chat.Outbox{bob, carol} {
		msgs, _ := out.Drain(10)
		require.Len(t, msgs, 1)
		assert.Equal(t, "alice: hello there\r\n", string(msgs[0]))
	}
	assert.EqualValues(t, 1, agent.Received())
}

func TestAgent_PreservesLineOrder(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	bob := chat.NewOutbox()
	require.NoError(t, target.Register("10.0.0.2:2", bob))

	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})
	done := runAgent(t, t.Context(), agent)

	conn.send("alice")
	for i := 0; i < 30; i++ {
		conn.send(fmt.Sprintf("line %d", i))
	}
	conn.hangUp()
	require.NoError(t, waitDone(t, done))

	msgs, more := bob.Drain(100)
	assert.False(t, more)
	require.Len(t, msgs, 30)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("alice: line %d\r\n", i), string(m))
	}
}

func TestAgent_SelfExclusionByIdentity(t *testing.T) {
	// A loopback bridge: the agent's own pool is also its target.
	pool := chat.NewRegistry("loop")
	other := chat.NewOutbox()
	require.NoError(t, pool.Register("10.0.0.2:2", other))

	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, pool, pool, chat.AgentConfig{})
	done := runAgent(t, t.Context(), agent)

	conn.send("alice")
	require.Eventually(t, func() bool { return pool.Contains("10.0.0.1:1") }, waitFor, tick)
	conn.send("echo?")

	require.Eventually(t, func() bool { return other.Len() == 1 }, waitFor, tick)
	conn.hangUp()
	require.NoError(t, waitDone(t, done))

	assert.Empty(t, conn.GetWritten())
}

func TestAgent_WritesQueuedMessages(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})
	done := runAgent(t, t.Context(), agent)

	conn.send("bob")
	require.Eventually(t, func() bool { return own.Contains("10.0.0.1:1") }, waitFor, tick)

	for _, p := range own.Snapshot() {
		p.Outbox.Push([]byte("alice: hi\r\n"))
	}
	require.Eventually(t, func() bool { return len(conn.GetWritten()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"alice: hi\r\n"}, conn.GetWritten())

	conn.hangUp()
	require.NoError(t, waitDone(t, done))
}

func TestAgent_TickBudgetDeliversEverything(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})

	// Queue the backlog before the writer can start draining it.
	conn.send("bob")
	done := runAgent(t, t.Context(), agent)
	require.Eventually(t, func() bool { return own.Contains("10.0.0.1:1") }, waitFor, tick)

	const total = 35
	peers := own.Snapshot()
	require.Len(t, peers, 1)
	for i := 0; i < total; i++ {
		peers[0].Outbox.Push([]byte(fmt.Sprintf("m%d\r\n", i)))
	}

	require.Eventually(t, func() bool { return len(conn.GetWritten()) == total }, waitFor, tick)
	written := conn.GetWritten()
	for i, w := range written {
		assert.Equal(t, fmt.Sprintf("m%d\r\n", i), w)
	}
	for _, n := range conn.GetFlushes() {
		assert.LessOrEqual(t, n, chat.DefaultTickBudget)
	}

	conn.hangUp()
	require.NoError(t, waitDone(t, done))
}

func TestAgent_CustomTickBudget(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{TickBudget: 3})
	done := runAgent(t, t.Context(), agent)

	conn.send("bob")
	require.Eventually(t, func() bool { return own.Contains("10.0.0.1:1") }, waitFor, tick)
	peers := own.Snapshot()
	for i := 0; i < 10; i++ {
		peers[0].Outbox.Push([]byte("x\r\n"))
	}

	require.Eventually(t, func() bool { return len(conn.GetWritten()) == 10 }, waitFor, tick)
	for _, n := range conn.GetFlushes() {
		assert.LessOrEqual(t, n, 3)
	}

	conn.hangUp()
	require.NoError(t, waitDone(t, done))
}

func TestAgent_FlushErrorTerminates(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	conn := newMockConn("10.0.0.1:1")
	boom := errors.New("connection reset")
	conn.flushErr = boom
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})
	done := runAgent(t, t.Context(), agent)

	conn.send("bob")
	require.Eventually(t, func() bool { return own.Contains("10.0.0.1:1") }, waitFor, tick)
	own.Snapshot()[0].Outbox.Push([]byte("alice: hi\r\n"))

	err := waitDone(t, done)
	assert.ErrorIs(t, err, boom)
	assert.False(t, own.Contains("10.0.0.1:1"))
	assert.True(t, conn.isClosed())
}

func TestAgent_ReadErrorTerminates(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	conn := newMockConn("10.0.0.1:1")
	boom := errors.New("read failed")
	conn.readErr = boom
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})

	err := agent.Run(t.Context())

	assert.ErrorIs(t, err, boom)
	assert.Zero(t, own.Len())
}

func TestAgent_DuplicateIdentityRejected(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	existing := chat.NewOutbox()
	require.NoError(t, own.Register("10.0.0.1:1", existing))

	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})
	conn.send("impostor")

	err := agent.Run(t.Context())

	assert.ErrorIs(t, err, chat.ErrDuplicatePeer)
	// The original entry must survive the failed join.
	peers := own.Snapshot()
	require.Len(t, peers, 1)
	assert.Same(t, existing, peers[0].Outbox)
}

func TestAgent_CancelStopsRun(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})

	ctx, cancel := context.WithCancel(t.Context())
	done := runAgent(t, ctx, agent)
	conn.send("alice")
	require.Eventually(t, func() bool { return own.Contains("10.0.0.1:1") }, waitFor, tick)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.False(t, own.Contains("10.0.0.1:1"))
	assert.True(t, conn.isClosed())
}

func TestAgent_BroadcastSkipsRemovedPeer(t *testing.T) {
	own, target := chat.NewRegistry("a"), chat.NewRegistry("b")
	gone := chat.NewOutbox()
	require.NoError(t, target.Register("10.0.0.2:2", gone))
	target.Unregister("10.0.0.2:2")
	gone.Close()

	conn := newMockConn("10.0.0.1:1")
	agent := chat.NewAgent(conn, own, target, chat.AgentConfig{})
	done := runAgent(t, t.Context(), agent)

	conn.send("alice")
	conn.send("anyone?")
	conn.hangUp()

	require.NoError(t, waitDone(t, done))
	assert.Zero(t, gone.Len())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting-name", chat.StateAwaitingName.String())
	assert.Equal(t, "active", chat.StateActive.String())
	assert.Equal(t, "terminated", chat.StateTerminated.String())
	assert.Equal(t, "unknown", chat.State(42).String())
}
