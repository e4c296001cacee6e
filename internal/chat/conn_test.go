package chat_test

import (
	"context"
	"io"
	"sync"

	"github.com/omochice/bridge-chat/internal/chat"
)

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	readErr    error
	writtenMu  sync.Mutex
	buffered   [][]byte
	written    [][]byte
	flushes    []int
	flushErr   error
	closeOnce  sync.Once
	closed     chan struct{}
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 64),
		closed:     make(chan struct{}),
		remoteAddr: addr,
	}
}

// send queues a line for the agent to read.
func (m *mockConn) send(line string) {
	m.readCh <- []byte(line)
}

// hangUp makes ReadLine report end of stream once queued lines are read.
func (m *mockConn) hangUp() {
	close(m.readCh)
}

func (m *mockConn) ReadLine(ctx context.Context) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, io.ErrClosedPipe
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Buffer(data []byte) {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	m.buffered = append(m.buffered, data)
}

func (m *mockConn) Flush(ctx context.Context) error {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	if m.flushErr != nil {
		return m.flushErr
	}
	m.flushes = append(m.flushes, len(m.buffered))
	m.written = append(m.written, m.buffered...)
	m.buffered = nil
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *mockConn) GetWritten() []string {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	out := make([]string, len(m.written))
	for i, w := range m.written {
		out[i] = string(w)
	}
	return out
}

func (m *mockConn) GetFlushes() []int {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	return append([]int(nil), m.flushes...)
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)
