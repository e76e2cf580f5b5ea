package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the pipeline for logging and metrics.
//
// Observers are notified in addition to the step hooks and never affect the
// outcome of a scenario: a panicking observer is recovered and logged.
// Implementations should be fast and non-blocking. When one observer is
// shared by scenarios running concurrently it must be safe for concurrent use.
type Observer interface {
	// OnScenarioStart is called once, before the first step runs.
	OnScenarioStart(ctx context.Context, sc *ScenarioContext)

	// OnScenarioCompleted is called when the run ends without a fatal error.
	OnScenarioCompleted(ctx context.Context, sc *ScenarioContext)

	// OnScenarioFailed is called when the run ends with a fatal error,
	// after cleanup has run.
	OnScenarioFailed(ctx context.Context, sc *ScenarioContext, err error)

	// OnStepStart is called before a step function is invoked.
	// index is the 0-based position in the main queue.
	OnStepStart(ctx context.Context, sc *ScenarioContext, meta StepMetadata, index int)

	// OnStepCompleted is called after an executed step has been recorded,
	// for both successes and failures (result.Err != nil).
	OnStepCompleted(ctx context.Context, sc *ScenarioContext, result StepResult, index int)

	// OnStepSkipped is called for every skip-marked entry.
	OnStepSkipped(ctx context.Context, sc *ScenarioContext, result StepResult, index int)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnScenarioStart(ctx context.Context, sc *ScenarioContext)                {}
func (NoopObserver) OnScenarioCompleted(ctx context.Context, sc *ScenarioContext)            {}
func (NoopObserver) OnScenarioFailed(ctx context.Context, sc *ScenarioContext, err error)    {}
func (NoopObserver) OnStepStart(ctx context.Context, sc *ScenarioContext, m StepMetadata, i int) {}
func (NoopObserver) OnStepCompleted(ctx context.Context, sc *ScenarioContext, r StepResult, i int) {
}
func (NoopObserver) OnStepSkipped(ctx context.Context, sc *ScenarioContext, r StepResult, i int) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnScenarioStart(ctx context.Context, sc *ScenarioContext) {
	for _, o := range c.observers {
		o.OnScenarioStart(ctx, sc)
	}
}

func (c *CompositeObserver) OnScenarioCompleted(ctx context.Context, sc *ScenarioContext) {
	for _, o := range c.observers {
		o.OnScenarioCompleted(ctx, sc)
	}
}

func (c *CompositeObserver) OnScenarioFailed(ctx context.Context, sc *ScenarioContext, err error) {
	for _, o := range c.observers {
		o.OnScenarioFailed(ctx, sc, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, sc *ScenarioContext, m StepMetadata, idx int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, sc, m, idx)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, sc *ScenarioContext, r StepResult, idx int) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, sc, r, idx)
	}
}

func (c *CompositeObserver) OnStepSkipped(ctx context.Context, sc *ScenarioContext, r StepResult, idx int) {
	for _, o := range c.observers {
		o.OnStepSkipped(ctx, sc, r, idx)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs scenario / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnScenarioStart(ctx context.Context, sc *ScenarioContext) {
	o.Logger.InfoContext(ctx, "scenario_start",
		slog.String("feature", sc.FeatureName),
		slog.String("scenario", sc.ScenarioName),
		slog.String("scenario_id", sc.ID),
	)
}

func (o *LoggingObserver) OnScenarioCompleted(ctx context.Context, sc *ScenarioContext) {
	o.Logger.InfoContext(ctx, "scenario_completed",
		slog.String("feature", sc.FeatureName),
		slog.String("scenario", sc.ScenarioName),
		slog.String("scenario_id", sc.ID),
		slog.Int("steps", len(sc.steps)),
	)
}

func (o *LoggingObserver) OnScenarioFailed(ctx context.Context, sc *ScenarioContext, err error) {
	o.Logger.ErrorContext(ctx, "scenario_failed",
		slog.String("feature", sc.FeatureName),
		slog.String("scenario", sc.ScenarioName),
		slog.String("scenario_id", sc.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, sc *ScenarioContext, m StepMetadata, idx int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("scenario", sc.ScenarioName),
		slog.String("scenario_id", sc.ID),
		slog.String("kind", m.Kind),
		slog.String("step", m.Title),
		slog.Int("step_index", idx),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, sc *ScenarioContext, r StepResult, idx int) {
	level := slog.LevelDebug
	if r.Err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("scenario", sc.ScenarioName),
		slog.String("scenario_id", sc.ID),
		slog.String("kind", r.Kind),
		slog.String("step", r.Title),
		slog.Int("step_index", idx),
		slog.Duration("duration", r.Elapsed),
		slog.Any("error", r.Err),
	)
}

func (o *LoggingObserver) OnStepSkipped(ctx context.Context, sc *ScenarioContext, r StepResult, idx int) {
	o.Logger.WarnContext(ctx, "step_skipped",
		slog.String("scenario", sc.ScenarioName),
		slog.String("scenario_id", sc.ID),
		slog.String("kind", r.Kind),
		slog.String("step", r.Title),
		slog.Int("step_index", idx),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	scenariosStarted   atomic.Int64
	scenariosCompleted atomic.Int64
	scenariosFailed    atomic.Int64
	stepsPassed        atomic.Int64
	stepsFailed        atomic.Int64
	stepsSkipped       atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ScenariosStarted   int64
	ScenariosCompleted int64
	ScenariosFailed    int64
	RunningScenarios   int64

	StepsPassed     int64
	StepsFailed     int64
	StepsSkipped    int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnScenarioStart(ctx context.Context, sc *ScenarioContext) {
	m.scenariosStarted.Add(1)
}

func (m *BasicMetrics) OnScenarioCompleted(ctx context.Context, sc *ScenarioContext) {
	m.scenariosCompleted.Add(1)
}

func (m *BasicMetrics) OnScenarioFailed(ctx context.Context, sc *ScenarioContext, err error) {
	m.scenariosFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, sc *ScenarioContext, r StepResult, idx int) {
	// Only successful steps count towards the average duration.
	if r.Err == nil {
		m.stepsPassed.Add(1)
		m.totalStepDuration.Add(r.Elapsed.Nanoseconds())
		return
	}
	m.stepsFailed.Add(1)
}

func (m *BasicMetrics) OnStepSkipped(ctx context.Context, sc *ScenarioContext, r StepResult, idx int) {
	m.stepsSkipped.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.scenariosStarted.Load()
	completed := m.scenariosCompleted.Load()
	failed := m.scenariosFailed.Load()
	passed := m.stepsPassed.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if passed > 0 {
		avg = time.Duration(totalNs / passed)
	}

	return BasicMetricsSnapshot{
		ScenariosStarted:   started,
		ScenariosCompleted: completed,
		ScenariosFailed:    failed,
		RunningScenarios:   started - completed - failed,
		StepsPassed:        passed,
		StepsFailed:        m.stepsFailed.Load(),
		StepsSkipped:       m.stepsSkipped.Load(),
		AvgStepDuration:    avg,
	}
}
