package feature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/petrijr/stepflow/internal/engine"
	"github.com/petrijr/stepflow/pkg/api"
)

// Executor turns parsed features into runnable scenarios.
type Executor struct {
	registry *Registry
	options  api.Options
	observer api.Observer
	logger   *slog.Logger
	bridge   api.TagBridge
	include  []string
	exclude  []string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithOptions sets the base options. A feature's own options override them.
func WithOptions(o api.Options) ExecutorOption {
	return func(e *Executor) { e.options = o }
}

// WithObserver attaches an observer to every scenario.
func WithObserver(o api.Observer) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

// WithLogger sets the logger for pipeline diagnostics.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithTagBridge forwards scenario tags to b.
func WithTagBridge(b api.TagBridge) ExecutorOption {
	return func(e *Executor) { e.bridge = b }
}

// WithTagFilter selects scenarios by tag. A scenario runs when it has at
// least one of the plain tags (or no plain tags were given) and none of the
// tags prefixed with "~". Feature tags count as scenario tags. A leading
// "@" is ignored.
func WithTagFilter(tags ...string) ExecutorOption {
	return func(e *Executor) {
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if neg, ok := strings.CutPrefix(t, "~"); ok {
				if neg = strings.TrimPrefix(neg, "@"); neg != "" {
					e.exclude = append(e.exclude, neg)
				}
				continue
			}
			if t = strings.TrimPrefix(t, "@"); t != "" {
				e.include = append(e.include, t)
			}
		}
	}
}

// NewExecutor returns an executor resolving steps against reg. A nil reg
// means DefaultRegistry().
func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	if reg == nil {
		reg = DefaultRegistry()
	}
	e := &Executor{registry: reg, options: api.DefaultOptions()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) selected(tags []string) bool {
	for _, t := range e.exclude {
		if slices.Contains(tags, t) {
			return false
		}
	}
	if len(e.include) == 0 {
		return true
	}
	for _, t := range e.include {
		if slices.Contains(tags, t) {
			return true
		}
	}
	return false
}

type boundStep struct {
	phase api.Phase
	word  api.Word
	title string
	fn    api.StepFunc
}

// scenarioRunner runs one scenario of a feature. Steps are resolved once,
// when the runner is built.
type scenarioRunner struct {
	exec     *Executor
	feature  *Feature
	scenario Scenario
	tags     []string
	options  api.Options
	steps    []boundStep
}

var _ api.ScenarioRunner = (*scenarioRunner)(nil)

func (r *scenarioRunner) Name() string {
	return r.feature.Name + " / " + r.scenario.Name
}

func (r *scenarioRunner) Run(ctx context.Context) (*api.ScenarioContext, error) {
	opts := r.options
	sc := api.NewScenarioContext(api.ScenarioConfig{
		FeatureName:        r.feature.Name,
		FeatureDescription: r.feature.Description,
		ScenarioName:       r.scenario.Name,
		Description:        r.scenario.Description,
		Options:            &opts,
		Tags:               r.tags,
		TagBridge:          r.exec.bridge,
	})
	p := engine.NewPipelineWithConfig(engine.Config{
		Scenario: sc,
		Observer: r.exec.observer,
		Logger:   r.exec.logger,
	})
	for _, s := range r.steps {
		p.Enqueue(s.phase, s.word, s.title, s.fn)
	}
	err := p.Run(ctx)
	return sc, err
}

// bind resolves steps, tracking the phase And/But inherit.
func (e *Executor) bind(path string, steps []Step, last *api.Phase) ([]boundStep, error) {
	out := make([]boundStep, 0, len(steps))
	for _, s := range steps {
		phase := *last
		if s.Word == api.WordPrimary {
			phase = s.Phase
			*last = phase
		}

		var fn api.StepFunc
		if s.Expr != "" {
			fn = ExprStep(s.Expr, phase)
		} else {
			var extra []string
			if s.DocString != nil {
				extra = append(extra, *s.DocString)
			}
			var err error
			if fn, err = e.registry.Resolve(s.Text, extra...); err != nil {
				return nil, &ParseError{Path: path, Line: s.Line, Msg: err.Error()}
			}
		}
		if s.Table != nil {
			fn = withTable(fn, s.Table)
		}
		out = append(out, boundStep{phase: phase, word: s.Word, title: s.Text, fn: fn})
	}
	return out, nil
}

// Runners builds one runner per selected scenario of f, background steps
// first. Any step text the registry cannot resolve fails the whole feature
// before anything runs.
func (e *Executor) Runners(f *Feature) ([]api.ScenarioRunner, error) {
	var runners []api.ScenarioRunner
	opts := f.Options.Apply(e.options)
	for _, s := range f.Scenarios {
		tags := append(slices.Clone(f.Tags), s.Tags...)
		if !e.selected(tags) {
			continue
		}

		last := api.PhaseGiven
		bg, err := e.bind(f.Path, f.Background, &last)
		if err != nil {
			return nil, err
		}
		steps, err := e.bind(f.Path, s.Steps, &last)
		if err != nil {
			return nil, err
		}
		runners = append(runners, &scenarioRunner{
			exec:     e,
			feature:  f,
			scenario: s,
			tags:     tags,
			options:  opts,
			steps:    append(bg, steps...),
		})
	}
	return runners, nil
}

// RunFeature runs every selected scenario of f in order and returns their
// contexts. The error joins the errors of failed scenarios; a step that
// cannot be resolved fails before any scenario runs.
func (e *Executor) RunFeature(ctx context.Context, f *Feature) ([]*api.ScenarioContext, error) {
	runners, err := e.Runners(f)
	if err != nil {
		return nil, err
	}
	out := make([]*api.ScenarioContext, 0, len(runners))
	var errs []error
	for _, r := range runners {
		sc, err := r.Run(ctx)
		out = append(out, sc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return out, errors.Join(errs...)
}
