// Package worker runs queued scenarios.
//
// A Worker consumes tasks from a taskqueue.Queue, runs each task's
// api.ScenarioRunner with a fresh ScenarioContext and reports the outcome
// through Config.OnResult. Several workers can share one queue to run
// independent scenarios in parallel; a single scenario always runs on one
// goroutine.
//
// Most callers go through stepflow.Suite, which owns the queue and the pool.
// The package is useful when embedding scenario execution in a longer-lived
// process that feeds the queue over time.
//
// # Shutdown
//
// Worker.Run returns nil once the queue has been closed and drained, and the
// context error when its context is cancelled. Scenarios already running
// observe the same context, so cancelling it stops them at their next step
// boundary; their cleanup steps still run.
package worker
