package api

import "context"

// BeforeStepHook runs right before a step function is invoked.
type BeforeStepHook func(sc *ScenarioContext, meta StepMetadata)

// AfterStepHook runs after a step result has been recorded, for passed,
// failed and skip-marked steps alike.
type AfterStepHook func(sc *ScenarioContext, result StepResult)

// Pipeline is an ordered queue of steps bound to one ScenarioContext.
// It runs once.
type Pipeline interface {
	// Enqueue appends a step with an explicit phase and word.
	// An empty title falls back to the phase name.
	Enqueue(phase Phase, word Word, title string, fn StepFunc)

	// EnqueueInherit appends a step whose phase is that of the last
	// primary step enqueued so far (Given when there is none).
	EnqueueInherit(title string, fn StepFunc, word Word)

	// EnqueueCleanup registers a cleanup step that receives captured.
	// Cleanup steps run in registration order after the main queue,
	// whatever its outcome.
	EnqueueCleanup(title string, fn StepFunc, captured any)

	// EnqueueCleanupHere registers a cleanup step that receives the value
	// current at this point of the queue, once the run gets there.
	EnqueueCleanupHere(title string, fn StepFunc)

	// SetBeforeStep installs the before-step hook.
	SetBeforeStep(h BeforeStepHook)

	// SetAfterStep installs the after-step hook.
	SetAfterStep(h AfterStepHook)

	// Len returns the number of main-queue entries.
	Len() int

	// Context returns the scenario the pipeline writes to.
	Context() *ScenarioContext

	// Run drains the main queue, then the cleanup list. It returns a
	// *ScenarioError when the scenario failed fatally, and
	// ErrPipelineConsumed when called a second time.
	Run(ctx context.Context) error
}

// ScenarioRunner runs one scenario with a fresh ScenarioContext and returns
// it together with the outcome of the run. Builders and file-based
// executors implement it so suites can schedule them.
type ScenarioRunner interface {
	Name() string
	Run(ctx context.Context) (*ScenarioContext, error)
}
