package vocals

import (
	"context"
	"sync"
)

// StreamTransport delivers encoded frames to the remote listener in order.
type StreamTransport interface {
	// Connect opens the initial connection. Failure is a ConnectionFailed error.
	Connect(ctx context.Context) error

	// Send enqueues a frame and returns immediately. Frames that do not fit
	// in the bounded queue are dropped and counted as lost.
	Send(frame Frame, data []byte)

	// Close flushes queued frames for a bounded grace period, then closes the
	// connection unconditionally. Safe to call more than once.
	Close() error

	// Err delivers at most one unrecoverable failure detected after Connect.
	Err() <-chan error

	// Stats returns the transport counters.
	Stats() TransportStats
}

// TransportStats are the counters kept by a StreamTransport.
type TransportStats struct {
	Sent       uint64
	Lost       uint64
	Reconnects uint64
	Queued     int
}

// TransportFactory builds the transport for one Active period of a session.
type TransportFactory func(cfg AudioConfig) StreamTransport

type queuedFrame struct {
	seq  uint32
	data []byte
}

// sendQueue is a bounded FIFO. The writer peeks the head and pops it only
// after a successful write, so a frame interrupted by a disconnect is retried
// first once the connection is back.
type sendQueue struct {
	mu     sync.Mutex
	items  []queuedFrame
	limit  int
	lost   uint64
	closed bool
	notify chan struct{}
}

func newSendQueue(limit int) *sendQueue {
	if limit < 1 {
		limit = 1
	}
	return &sendQueue{
		items:  make([]queuedFrame, 0, limit),
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

// push appends f. It reports whether f was dropped because the queue is full.
func (q *sendQueue) push(f queuedFrame) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.items) >= q.limit {
		q.lost++
		q.mu.Unlock()
		return true
	}
	q.items = append(q.items, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return false
}

func (q *sendQueue) peek() (queuedFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return queuedFrame{}, false
	}
	return q.items[0], true
}

func (q *sendQueue) pop() {
	q.mu.Lock()
	if len(q.items) > 0 {
		q.items[0] = queuedFrame{}
		q.items = q.items[1:]
	}
	q.mu.Unlock()
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *sendQueue) lostCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lost
}

// close stops accepting frames; queued ones stay for the final flush.
func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
