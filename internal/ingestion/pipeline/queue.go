package pipeline

import (
	"context"
	"sync"
)

// Queue is a fixed-capacity handoff between the producer and the upload
// workers. Put blocks while the queue is full; nothing is ever dropped.
// Close marks end-of-stream: every Get after the remaining items are drained
// reports false, so all workers observe termination exactly once.
type Queue struct {
	ch        chan Batch
	closeOnce sync.Once
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan Batch, capacity)}
}

// Put enqueues b, waiting for room. It must not be called after Close.
func (q *Queue) Put(ctx context.Context, b Batch) error {
	select {
	case q.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get waits for the next batch. It returns false once the queue is closed
// and drained, or when ctx is done.
func (q *Queue) Get(ctx context.Context) (Batch, bool) {
	select {
	case b, ok := <-q.ch:
		return b, ok
	case <-ctx.Done():
		return Batch{}, false
	}
}

// Close signals end-of-stream. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Len is the number of batches waiting.
func (q *Queue) Len() int { return len(q.ch) }

// Cap is the fixed capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
