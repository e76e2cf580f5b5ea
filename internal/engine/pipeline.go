package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// cleanupTitle is used for cleanup steps registered without a title.
const cleanupTitle = "Finally"

type queueEntry struct {
	meta api.StepMetadata
	fn   api.StepFunc
}

type cleanupEntry struct {
	title    string
	fn       api.StepFunc
	captured any

	// position is the main-queue index the captured value belongs to;
	// -1 once the value is known.
	position int
}

// pipeline is the synchronous, single-use Step Pipeline.
type pipeline struct {
	sc       *api.ScenarioContext
	observer api.Observer
	logger   *slog.Logger

	queue    []queueEntry
	cleanups []cleanupEntry

	lastPrimary api.Phase

	beforeStep api.BeforeStepHook
	afterStep  api.AfterStepHook

	ran bool
}

// Config describes how to construct a pipeline.
type Config struct {
	// Scenario is the context the pipeline writes into. When nil, a
	// context with default options is created.
	Scenario *api.ScenarioContext

	// Observer is notified of scenario and step events. Optional.
	Observer api.Observer

	// Logger receives engine diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

var _ api.Pipeline = (*pipeline)(nil)

// NewPipeline returns a pipeline bound to sc.
func NewPipeline(sc *api.ScenarioContext) api.Pipeline {
	return NewPipelineWithConfig(Config{Scenario: sc})
}

// NewPipelineWithConfig creates a pipeline using the given configuration.
func NewPipelineWithConfig(cfg Config) api.Pipeline {
	sc := cfg.Scenario
	if sc == nil {
		sc = api.NewScenarioContext(api.ScenarioConfig{})
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &pipeline{
		sc:          sc,
		observer:    obs,
		logger:      logger,
		lastPrimary: api.PhaseGiven,
	}
}

func (p *pipeline) Enqueue(phase api.Phase, word api.Word, title string, fn api.StepFunc) {
	if fn == nil {
		panic(fmt.Sprintf("stepflow: step %q has nil function", title))
	}
	if word == api.WordPrimary {
		p.lastPrimary = phase
	}
	p.queue = append(p.queue, queueEntry{
		meta: api.NewStepMetadata(phase, word, title),
		fn:   fn,
	})
}

func (p *pipeline) EnqueueInherit(title string, fn api.StepFunc, word api.Word) {
	p.Enqueue(p.lastPrimary, word, title, fn)
}

func (p *pipeline) EnqueueCleanup(title string, fn api.StepFunc, captured any) {
	if fn == nil {
		panic(fmt.Sprintf("stepflow: cleanup %q has nil function", title))
	}
	p.cleanups = append(p.cleanups, cleanupEntry{
		title:    title,
		fn:       fn,
		captured: captured,
		position: -1,
	})
}

func (p *pipeline) EnqueueCleanupHere(title string, fn api.StepFunc) {
	if fn == nil {
		panic(fmt.Sprintf("stepflow: cleanup %q has nil function", title))
	}
	p.cleanups = append(p.cleanups, cleanupEntry{
		title:    title,
		fn:       fn,
		position: len(p.queue),
	})
}

func (p *pipeline) SetBeforeStep(h api.BeforeStepHook) { p.beforeStep = h }

func (p *pipeline) SetAfterStep(h api.AfterStepHook) { p.afterStep = h }

func (p *pipeline) Len() int { return len(p.queue) }

func (p *pipeline) Context() *api.ScenarioContext { return p.sc }

// Run drains the main queue and then the cleanup list.
//
// A panicking hook aborts the main queue; cleanup still runs and the panic
// is re-raised afterwards.
func (p *pipeline) Run(ctx context.Context) error {
	if p.ran {
		return api.ErrPipelineConsumed
	}
	p.ran = true

	sc := p.sc
	sc.MarkStarted(time.Now())
	sc.SetCleanupRegistrar(p)
	p.notify(ctx, "scenario_start", func(o api.Observer) { o.OnScenarioStart(ctx, sc) })

	var (
		fatal     error
		hookPanic any
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				hookPanic = r
			}
		}()
		fatal = p.drain(ctx)
	}()

	// Whatever happened, cleanup sees the last successful value for any
	// position the run never reached.
	p.resolveCaptures(len(p.queue))
	sc.SetCleanupRegistrar(nil)
	cleanupErr := p.runCleanups(ctx)

	if hookPanic != nil {
		hookErr := fmt.Errorf("step hook panicked: %v", hookPanic)
		sc.MarkFinished(time.Now(), hookErr)
		p.notify(ctx, "scenario_failed", func(o api.Observer) { o.OnScenarioFailed(ctx, sc, hookErr) })
		panic(hookPanic)
	}

	var runErr error
	switch {
	case fatal != nil:
		runErr = &api.ScenarioError{Scenario: sc, Cause: fatal, Cleanup: cleanupErr}
	case cleanupErr != nil && !sc.Options.ContinueOnError:
		runErr = &api.ScenarioError{Scenario: sc, Cause: cleanupErr}
	}

	sc.MarkFinished(time.Now(), runErr)

	if runErr != nil {
		p.logger.ErrorContext(ctx, "scenario_failed",
			slog.String("scenario", sc.ScenarioName),
			slog.String("scenario_id", sc.ID),
			slog.Any("error", runErr),
		)
		p.notify(ctx, "scenario_failed", func(o api.Observer) { o.OnScenarioFailed(ctx, sc, runErr) })
		return runErr
	}
	p.notify(ctx, "scenario_completed", func(o api.Observer) { o.OnScenarioCompleted(ctx, sc) })
	return nil
}

// drain runs the main queue and returns the fatal cause, if any.
func (p *pipeline) drain(ctx context.Context) error {
	sc := p.sc
	opts := sc.Options

	for i, entry := range p.queue {
		p.resolveCaptures(i)
		meta := entry.meta.Resolved()
		input := sc.CurrentItem()

		var (
			out     any
			err     error
			elapsed time.Duration
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Cancelled between steps: the step never starts.
			err = ctxErr
		} else {
			if p.beforeStep != nil {
				p.beforeStep(sc, meta)
			}
			p.notify(ctx, "step_start", func(o api.Observer) { o.OnStepStart(ctx, sc, meta, i) })

			start := time.Now()
			out, err = p.invoke(ctx, meta.Title, entry.fn, input)
			elapsed = time.Since(start)
		}

		result := api.StepResult{
			Kind:    meta.Kind,
			Title:   meta.Title,
			Phase:   meta.Phase,
			Word:    meta.Word,
			Elapsed: elapsed,
			Err:     err,
		}

		if err == nil {
			sc.AppendIO(api.StepIO{Kind: meta.Kind, Title: meta.Title, Input: input, Output: out})
			sc.AdvanceCurrentItem(out)
			sc.AppendStep(result)
			p.recordAfter(ctx, result, i)
			continue
		}

		kind := api.Classify(ctx, err)
		sc.AppendStep(result)
		p.recordAfter(ctx, result, i)

		if !kind.Fatal(opts) {
			p.logger.DebugContext(ctx, "step_failed_continuing",
				slog.String("scenario_id", sc.ID),
				slog.String("step", meta.Title),
				slog.String("failure", kind.String()),
				slog.Any("error", err),
			)
			continue
		}

		cause := err
		if kind == api.FailureCancelled && !errors.Is(err, ctx.Err()) {
			cause = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		p.skipRemaining(ctx, i+1)
		return cause
	}
	return nil
}

// invoke calls fn with the scenario attached to ctx, applying the step
// timeout. Panics are recovered into *api.PanicError.
func (p *pipeline) invoke(ctx context.Context, title string, fn api.StepFunc, input any) (out any, err error) {
	stepCtx := api.WithScenario(ctx, p.sc)
	timeout := p.sc.Options.StepTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &api.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	out, err = fn(stepCtx, input)
	switch {
	case ctx.Err() != nil:
		// The caller cancelled while the step ran. A step that ignored the
		// signal and returned a value still fails with the cancellation.
		if err == nil {
			out, err = nil, ctx.Err()
		}
	case timeout > 0 && errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		out, err = nil, &api.StepTimeoutError{Step: title, Timeout: timeout, Cause: err}
	}
	return out, err
}

func (p *pipeline) recordAfter(ctx context.Context, result api.StepResult, idx int) {
	if p.afterStep != nil {
		p.afterStep(p.sc, result)
	}
	p.notify(ctx, "step_completed", func(o api.Observer) { o.OnStepCompleted(ctx, p.sc, result, idx) })
}

// skipRemaining records a skip-marked result for every entry from index on.
func (p *pipeline) skipRemaining(ctx context.Context, from int) {
	if !p.sc.Options.MarkRemainingAsSkippedOnFailure {
		return
	}
	for j := from; j < len(p.queue); j++ {
		meta := p.queue[j].meta.Resolved()
		result := api.StepResult{
			Kind:  meta.Kind,
			Title: meta.Title,
			Phase: meta.Phase,
			Word:  meta.Word,
			Err:   api.ErrSkipped,
		}
		p.sc.AppendStep(result)
		if p.afterStep != nil {
			p.afterStep(p.sc, result)
		}
		p.notify(ctx, "step_skipped", func(o api.Observer) { o.OnStepSkipped(ctx, p.sc, result, j) })
	}
}

// resolveCaptures fixes the captured value of positional cleanups whose
// position has been reached.
func (p *pipeline) resolveCaptures(reached int) {
	for i := range p.cleanups {
		c := &p.cleanups[i]
		if c.position >= 0 && c.position <= reached {
			c.captured = p.sc.CurrentItem()
			c.position = -1
		}
	}
}

// runCleanups runs every cleanup entry once, in registration order. It
// detaches from the caller's cancellation so cleanup still runs after the
// caller gave up.
func (p *pipeline) runCleanups(ctx context.Context) error {
	cctx := context.WithoutCancel(ctx)
	var errs []error

	for _, c := range p.cleanups {
		title := c.title
		if title == "" {
			title = cleanupTitle
		}

		start := time.Now()
		_, err := p.invoke(cctx, title, c.fn, c.captured)
		result := api.StepResult{
			Kind:    cleanupTitle,
			Title:   title,
			Phase:   api.PhaseThen,
			Word:    api.WordPrimary,
			Elapsed: time.Since(start),
			Err:     err,
		}
		p.sc.AppendCleanup(result)

		if err != nil {
			p.logger.WarnContext(ctx, "cleanup_failed",
				slog.String("scenario_id", p.sc.ID),
				slog.String("step", title),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("cleanup %q: %w", title, err))
		}
	}
	return errors.Join(errs...)
}

// notify calls fn with the observer; a panicking observer is logged and
// never changes the outcome.
func (p *pipeline) notify(ctx context.Context, event string, fn func(api.Observer)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "observer_panic",
				slog.String("event", event),
				slog.String("scenario_id", p.sc.ID),
				slog.Any("panic", r),
			)
		}
	}()
	fn(p.observer)
}
