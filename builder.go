package stepflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/pkg/api"
)

// ScenarioOption configures a ScenarioBuilder.
type ScenarioOption func(*scenarioConfig)

type scenarioConfig struct {
	options            api.Options
	description        string
	featureDescription string
	observer           api.Observer
	logger             *slog.Logger
	bridge             api.TagBridge
	seed               any
}

// WithOptions replaces the scenario options.
func WithOptions(o Options) ScenarioOption {
	return func(c *scenarioConfig) { c.options = o }
}

// ContinueOnError keeps running after ordinary step failures.
func ContinueOnError() ScenarioOption {
	return func(c *scenarioConfig) { c.options.ContinueOnError = true }
}

// WithStepTimeout bounds every step. Zero disables the bound.
func WithStepTimeout(d time.Duration) ScenarioOption {
	return func(c *scenarioConfig) { c.options.StepTimeout = d }
}

// WithDescription sets the scenario description.
func WithDescription(d string) ScenarioOption {
	return func(c *scenarioConfig) { c.description = d }
}

// WithFeatureDescription sets the description of the enclosing feature.
func WithFeatureDescription(d string) ScenarioOption {
	return func(c *scenarioConfig) { c.featureDescription = d }
}

// WithObserver attaches an observer to every run.
func WithObserver(o Observer) ScenarioOption {
	return func(c *scenarioConfig) { c.observer = o }
}

// WithLogger sets the logger used for engine diagnostics.
func WithLogger(l *slog.Logger) ScenarioOption {
	return func(c *scenarioConfig) { c.logger = l }
}

// WithTagBridge forwards scenario tags to b.
func WithTagBridge(b TagBridge) ScenarioOption {
	return func(c *scenarioConfig) { c.bridge = b }
}

// WithSeed sets the value the first step receives.
func WithSeed(v any) ScenarioOption {
	return func(c *scenarioConfig) { c.seed = v }
}

type stepKind int

const (
	mainStep stepKind = iota
	inheritStep
	cleanupHere
	cleanupCaptured
)

type builderStep struct {
	kind     stepKind
	phase    api.Phase
	word     api.Word
	title    string
	fn       api.StepFunc
	captured any
}

// ScenarioBuilder provides a fluent API for declaring scenarios:
//
//	sc, err := stepflow.NewScenario("Calculator", "adds numbers").
//	    Given("a number", stepflow.Value(2)).
//	    When("I add 3", stepflow.Func(func(ctx context.Context, n int) (int, error) { return n + 3, nil })).
//	    Then("it is 5", expect.Equal(5)).
//	    Run(ctx)
//
// Every Run builds a new ScenarioContext and a new pipeline, so a builder
// can be run any number of times and from several goroutines.
type ScenarioBuilder struct {
	feature string
	name    string
	cfg     scenarioConfig
	tags    []string
	steps   []builderStep
	before  api.BeforeStepHook
	after   api.AfterStepHook
}

var _ api.ScenarioRunner = (*ScenarioBuilder)(nil)

// NewScenario creates a builder for scenario name of feature.
func NewScenario(feature, name string, opts ...ScenarioOption) *ScenarioBuilder {
	cfg := scenarioConfig{options: api.DefaultOptions()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ScenarioBuilder{feature: feature, name: name, cfg: cfg}
}

// Name returns the scenario name.
func (b *ScenarioBuilder) Name() string {
	return b.name
}

// Feature returns the feature name.
func (b *ScenarioBuilder) Feature() string {
	return b.feature
}

func (b *ScenarioBuilder) add(s builderStep) *ScenarioBuilder {
	if s.fn == nil {
		panic(fmt.Sprintf("stepflow: step %q has nil function", s.title))
	}
	b.steps = append(b.steps, s)
	return b
}

// Step appends a step with an explicit phase and word.
func (b *ScenarioBuilder) Step(phase Phase, word Word, title string, fn StepFunc) *ScenarioBuilder {
	return b.add(builderStep{kind: mainStep, phase: phase, word: word, title: title, fn: fn})
}

// Given appends a primary Given step.
func (b *ScenarioBuilder) Given(title string, fn StepFunc) *ScenarioBuilder {
	return b.Step(api.PhaseGiven, api.WordPrimary, title, fn)
}

// When appends a primary When step.
func (b *ScenarioBuilder) When(title string, fn StepFunc) *ScenarioBuilder {
	return b.Step(api.PhaseWhen, api.WordPrimary, title, fn)
}

// Then appends a primary Then step.
func (b *ScenarioBuilder) Then(title string, fn StepFunc) *ScenarioBuilder {
	return b.Step(api.PhaseThen, api.WordPrimary, title, fn)
}

// And appends a continuation in the phase of the preceding primary step.
func (b *ScenarioBuilder) And(title string, fn StepFunc) *ScenarioBuilder {
	return b.add(builderStep{kind: inheritStep, word: api.WordAnd, title: title, fn: fn})
}

// But appends a contrasting continuation in the phase of the preceding
// primary step.
func (b *ScenarioBuilder) But(title string, fn StepFunc) *ScenarioBuilder {
	return b.add(builderStep{kind: inheritStep, word: api.WordBut, title: title, fn: fn})
}

// Finally registers a cleanup step that receives the value current at this
// point of the scenario.
func (b *ScenarioBuilder) Finally(title string, fn StepFunc) *ScenarioBuilder {
	return b.add(builderStep{kind: cleanupHere, title: title, fn: fn})
}

// FinallyWith registers a cleanup step that receives captured.
func (b *ScenarioBuilder) FinallyWith(title string, fn StepFunc, captured any) *ScenarioBuilder {
	return b.add(builderStep{kind: cleanupCaptured, title: title, fn: fn, captured: captured})
}

// Tag adds tags to every run of the scenario.
func (b *ScenarioBuilder) Tag(tags ...string) *ScenarioBuilder {
	b.tags = append(b.tags, tags...)
	return b
}

// BeforeStep installs the before-step hook.
func (b *ScenarioBuilder) BeforeStep(h BeforeStepHook) *ScenarioBuilder {
	b.before = h
	return b
}

// AfterStep installs the after-step hook.
func (b *ScenarioBuilder) AfterStep(h AfterStepHook) *ScenarioBuilder {
	b.after = h
	return b
}

// Build creates a fresh ScenarioContext and a pipeline loaded with the
// declared steps. The pipeline has not run yet.
func (b *ScenarioBuilder) Build() Pipeline {
	opts := b.cfg.options
	sc := api.NewScenarioContext(api.ScenarioConfig{
		FeatureName:        b.feature,
		FeatureDescription: b.cfg.featureDescription,
		ScenarioName:       b.name,
		Description:        b.cfg.description,
		Options:            &opts,
		Tags:               b.tags,
		TagBridge:          b.cfg.bridge,
	})
	if b.cfg.seed != nil {
		sc.SetCurrentItem(b.cfg.seed)
	}

	p := engine.NewPipelineWithConfig(engine.Config{
		Scenario: sc,
		Observer: b.cfg.observer,
		Logger:   b.cfg.logger,
	})
	for _, s := range b.steps {
		switch s.kind {
		case mainStep:
			p.Enqueue(s.phase, s.word, s.title, s.fn)
		case inheritStep:
			p.EnqueueInherit(s.title, s.fn, s.word)
		case cleanupHere:
			p.EnqueueCleanupHere(s.title, s.fn)
		case cleanupCaptured:
			p.EnqueueCleanup(s.title, s.fn, s.captured)
		}
	}
	if b.before != nil {
		p.SetBeforeStep(b.before)
	}
	if b.after != nil {
		p.SetAfterStep(b.after)
	}
	return p
}

// Run builds and runs the scenario. It always returns the context, also
// when the run failed.
func (b *ScenarioBuilder) Run(ctx context.Context) (*ScenarioContext, error) {
	p := b.Build()
	err := p.Run(ctx)
	return p.Context(), err
}
