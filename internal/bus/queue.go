package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"tradecore/internal/schema"
)

var (
	ErrQueueFull   = errors.New("outcome queue full")
	ErrQueueClosed = errors.New("outcome queue closed")
)

// Queue is a bounded, non-blocking queue of closed-trade outcomes.
type Queue struct {
	ch     chan schema.TradeOutcome
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan schema.TradeOutcome, capacity)}
}

// TryPublish enqueues an outcome without blocking.
func (q *Queue) TryPublish(o schema.TradeOutcome) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- o:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new outcomes.
// Outcomes already queued are still delivered by Run.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes outcomes in publish order until the context is done or the
// queue is closed and drained.
func (q *Queue) Run(ctx context.Context, handler func(schema.TradeOutcome)) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-q.ch:
			if !ok {
				return
			}
			handler(o)
		}
	}
}
