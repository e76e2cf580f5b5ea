package taskqueue

import (
	"context"
	"sync"
)

// InMemoryQueue is a Queue backed by a buffered channel.
// It is safe for concurrent use.
type InMemoryQueue struct {
	mu        sync.RWMutex
	closed    bool
	ch        chan Task
	done      chan struct{}
	closeOnce sync.Once
}

// NewInMemoryQueue creates a new queue with the given capacity.
// A non-positive capacity defaults to 1024.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch:   make(chan Task, capacity),
		done: make(chan struct{}),
	}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- t:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return &t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases Enqueue calls blocked on a full queue with ErrClosed,
// then closes the channel. Tasks already queued can still be dequeued.
func (q *InMemoryQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)

		q.mu.Lock()
		defer q.mu.Unlock()
		q.closed = true
		close(q.ch)
	})
}

func (q *InMemoryQueue) Len() int {
	return len(q.ch)
}
