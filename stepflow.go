package stepflow

import (
	"log/slog"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	StepFunc             = api.StepFunc
	Phase                = api.Phase
	Word                 = api.Word
	StepMetadata         = api.StepMetadata
	StepResult           = api.StepResult
	StepIO               = api.StepIO
	Options              = api.Options
	ScenarioContext      = api.ScenarioContext
	ScenarioConfig       = api.ScenarioConfig
	ScenarioRunner       = api.ScenarioRunner
	Pipeline             = api.Pipeline
	TagBridge            = api.TagBridge
	BeforeStepHook       = api.BeforeStepHook
	AfterStepHook        = api.AfterStepHook
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	AssertionError       = api.AssertionError
	StepTimeoutError     = api.StepTimeoutError
	ScenarioError        = api.ScenarioError
	PanicError           = api.PanicError
)

// Re-export phases and words for convenience.

const (
	Given = api.PhaseGiven
	When  = api.PhaseWhen
	Then  = api.PhaseThen

	Primary = api.WordPrimary
	And     = api.WordAnd
	But     = api.WordBut
)

// Re-export common helpers.

var (
	DefaultOptions       = api.DefaultOptions
	NewScenarioContext   = api.NewScenarioContext
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewAssertionError    = api.NewAssertionError
	DeferCleanup         = api.DeferCleanup
	AddTag               = api.AddTag
	ScenarioFromContext  = api.ScenarioFromContext

	ErrSkipped          = api.ErrSkipped
	ErrPipelineConsumed = api.ErrPipelineConsumed
	ErrNoActiveRun      = api.ErrNoActiveRun
)

// Pipeline constructors.
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewPipeline returns a single-use pipeline writing into sc. A nil sc gets
// a fresh context with DefaultOptions.
func NewPipeline(sc *ScenarioContext) Pipeline {
	return engine.NewPipeline(sc)
}

// NewPipelineWithObserver returns a pipeline that also notifies obs.
func NewPipelineWithObserver(sc *ScenarioContext, obs Observer) Pipeline {
	return engine.NewPipelineWithConfig(engine.Config{Scenario: sc, Observer: obs})
}

// NewPipelineWithLogger returns a pipeline that notifies obs and logs engine
// diagnostics to logger.
func NewPipelineWithLogger(sc *ScenarioContext, obs Observer, logger *slog.Logger) Pipeline {
	return engine.NewPipelineWithConfig(engine.Config{Scenario: sc, Observer: obs, Logger: logger})
}
