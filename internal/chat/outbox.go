package chat

import "sync"

// Outbox is an unbounded FIFO of outbound lines for one peer.
//
// Any number of goroutines may Push; exactly one goroutine (the owning
// Agent) consumes with Drain. Push never blocks, so a broadcast is never
// held up by a slow receiver; the price is unbounded memory growth.
type Outbox struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	ready  chan struct{}
}

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Push appends msg to the queue. It reports false, dropping msg, if the
// Outbox has been closed. msg must not be modified afterwards.
func (o *Outbox) Push(msg []byte) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()

	o.Wake()
	return true
}

// Ready returns a channel that receives a value after a Push or Wake.
// A single signal may stand for many queued messages.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Wake signals Ready without queueing anything. The consumer uses it to
// reschedule itself when it stops draining with messages still queued.
func (o *Outbox) Wake() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns up to max messages in FIFO order, and reports
// whether more remain.
func (o *Outbox) Drain(max int) ([][]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := min(max, len(o.queue))
	msgs := make([][]byte, n)
	copy(msgs, o.queue[:n])
	clear(o.queue[:n])
	o.queue = o.queue[n:]
	if len(o.queue) == 0 {
		o.queue = nil
	}
	return msgs, len(o.queue) > 0
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Close discards queued messages and makes later Pushes no-ops.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.queue = nil
}
