package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// ErrClosed is returned by Enqueue after Close, and by Dequeue once a
// closed queue has been drained.
var ErrClosed = errors.New("taskqueue: queue closed")

// Task is one scenario waiting to be run by a worker.
type Task struct {
	ID string

	// Index is the position of the scenario in the submitted batch, used to
	// put results back in submission order.
	Index int

	Runner api.ScenarioRunner

	EnqueuedAt time.Time
}

// Queue is a FIFO of scenario tasks shared by a pool of workers.
type Queue interface {
	// Enqueue adds a task to the queue. It respects ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is
	// available, the queue is closed and empty, or ctx is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Close stops accepting tasks. Queued tasks can still be dequeued.
	Close()

	// Len returns the approximate number of tasks queued.
	Len() int
}
