package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/stepflow/internal/taskqueue"
	"github.com/petrijr/stepflow/pkg/api"
)

// Result is the outcome of one processed task.
type Result struct {
	Task     taskqueue.Task
	Scenario *api.ScenarioContext
	Err      error
	Duration time.Duration
}

// Config tunes a Worker. The zero value is usable.
type Config struct {
	// Logger receives worker lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger

	// OnResult is called after every processed task, from the worker's
	// goroutine. It must be safe for concurrent use when several workers
	// share it.
	OnResult func(Result)
}

// Worker pulls scenario tasks from a Queue and runs them.
type Worker struct {
	queue  taskqueue.Queue
	logger *slog.Logger
	onRes  func(Result)
}

// New creates a new Worker.
func New(queue taskqueue.Queue, cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:  queue,
		logger: logger,
		onRes:  cfg.OnResult,
	}
}

// Enqueue schedules runner at position index of a batch. It does NOT run
// the scenario; that is done by ProcessOne.
func (w *Worker) Enqueue(ctx context.Context, index int, runner api.ScenarioRunner) error {
	if runner == nil {
		return errors.New("worker: nil scenario runner")
	}
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Index:      index,
		Runner:     runner,
		EnqueuedAt: time.Now(),
	})
}

// ProcessOne pulls a single task from the queue and runs it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the dequeue error
//     (context cancellation or taskqueue.ErrClosed).
//   - processed == true: a scenario ran; err is its outcome.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	res := w.run(ctx, *task)
	if w.onRes != nil {
		w.onRes(res)
	}
	return true, res.Err
}

// Run processes tasks until the queue is closed and drained, or ctx is
// cancelled. Scenario failures are logged and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if !processed {
			if errors.Is(err, taskqueue.ErrClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			continue
		}
		if err != nil {
			w.logger.Debug("worker_scenario_failed", slog.Any("error", err))
		}
	}
}

// run invokes the task's runner. A panic escaping the runner, such as one
// raised by a step hook, is turned into an error so one scenario cannot take
// the whole pool down.
func (w *Worker) run(ctx context.Context, task taskqueue.Task) (res Result) {
	res.Task = task
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Err = &api.PanicError{Value: r, Stack: debug.Stack()}
			w.logger.Error("worker_scenario_panic",
				slog.String("scenario", task.Runner.Name()),
				slog.String("task_id", task.ID),
				slog.Any("panic", r),
			)
		}
	}()

	w.logger.Debug("worker_scenario_start",
		slog.String("scenario", task.Runner.Name()),
		slog.String("task_id", task.ID),
		slog.Duration("queued", start.Sub(task.EnqueuedAt)),
	)
	sc, err := task.Runner.Run(ctx)
	res.Scenario = sc
	res.Err = err
	if sc == nil && err == nil {
		res.Err = fmt.Errorf("worker: runner %q returned no scenario", task.Runner.Name())
	}
	return res
}
