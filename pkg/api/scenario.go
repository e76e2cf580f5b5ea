package api

import (
	"errors"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TagBridge receives tags added to a scenario, typically to forward them to
// a test framework or report. Implementations must tolerate any tag.
type TagBridge interface {
	AddTag(tag string)
}

// NoopTagBridge ignores every tag. It is the default bridge.
type NoopTagBridge struct{}

func (NoopTagBridge) AddTag(string) {}

// CleanupRegistrar accepts cleanup steps registered while a scenario runs.
// The running pipeline installs itself on the ScenarioContext.
type CleanupRegistrar interface {
	EnqueueCleanup(title string, fn StepFunc, captured any)
}

// ScenarioContext accumulates everything that happens during one scenario
// run. A single pipeline writes to it; reporters read it afterwards.
//
// The mutation methods are not safe for concurrent use. Accessors return
// copies, so a finished context reads the same on every call.
type ScenarioContext struct {
	ID                 string
	FeatureName        string
	FeatureDescription string
	ScenarioName       string
	Description        string
	Options            Options

	StartedAt  time.Time
	FinishedAt time.Time

	tags     map[string]struct{}
	tagOrder []string
	bridge   TagBridge

	steps    []StepResult
	io       []StepIO
	cleanups []StepResult
	current  any
	err      error

	registrar CleanupRegistrar
}

// ScenarioConfig describes how to construct a ScenarioContext.
type ScenarioConfig struct {
	FeatureName        string
	FeatureDescription string
	ScenarioName       string
	Description        string
	Options            *Options
	Tags               []string
	TagBridge          TagBridge
}

// NewScenarioContext creates a context with a fresh ID. Nil Options means
// DefaultOptions; nil TagBridge means NoopTagBridge.
func NewScenarioContext(cfg ScenarioConfig) *ScenarioContext {
	opts := DefaultOptions()
	if cfg.Options != nil {
		opts = *cfg.Options
	}
	bridge := cfg.TagBridge
	if bridge == nil {
		bridge = NoopTagBridge{}
	}
	sc := &ScenarioContext{
		ID:                 uuid.NewString(),
		FeatureName:        cfg.FeatureName,
		FeatureDescription: cfg.FeatureDescription,
		ScenarioName:       cfg.ScenarioName,
		Description:        cfg.Description,
		Options:            opts,
		tags:               make(map[string]struct{}),
		bridge:             bridge,
	}
	for _, t := range cfg.Tags {
		sc.AddTag(t)
	}
	return sc
}

// AddTag adds tag to the scenario and forwards it to the tag bridge.
// Adding the same tag twice is a no-op; a panicking bridge is logged and
// otherwise ignored.
func (sc *ScenarioContext) AddTag(tag string) {
	if tag == "" {
		return
	}
	if sc.tags == nil {
		sc.tags = make(map[string]struct{})
	}
	if _, ok := sc.tags[tag]; ok {
		return
	}
	sc.tags[tag] = struct{}{}
	sc.tagOrder = append(sc.tagOrder, tag)

	if sc.bridge == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("tag_bridge_panic",
				slog.String("scenario", sc.ScenarioName),
				slog.String("tag", tag),
				slog.Any("panic", r),
			)
		}
	}()
	sc.bridge.AddTag(tag)
}

// HasTag reports whether tag was added.
func (sc *ScenarioContext) HasTag(tag string) bool {
	_, ok := sc.tags[tag]
	return ok
}

// Tags returns the tags in the order they were first added.
func (sc *ScenarioContext) Tags() []string {
	return slices.Clone(sc.tagOrder)
}

// SortedTags returns the tags sorted alphabetically.
func (sc *ScenarioContext) SortedTags() []string {
	out := sc.Tags()
	sort.Strings(out)
	return out
}

// Steps returns the recorded step results in execution order.
func (sc *ScenarioContext) Steps() []StepResult {
	return slices.Clone(sc.steps)
}

// IO returns the recorded step lineage in execution order.
func (sc *ScenarioContext) IO() []StepIO {
	return slices.Clone(sc.io)
}

// Cleanups returns the results of cleanup steps in the order they ran.
func (sc *ScenarioContext) Cleanups() []StepResult {
	return slices.Clone(sc.cleanups)
}

// CurrentItem returns the value produced by the last successful step.
func (sc *ScenarioContext) CurrentItem() any {
	return sc.current
}

// Err returns the fatal error the run ended with, if any.
func (sc *ScenarioContext) Err() error {
	return sc.err
}

// Passed reports whether the run ended without a fatal error and every
// recorded step and cleanup passed.
func (sc *ScenarioContext) Passed() bool {
	if sc.err != nil {
		return false
	}
	for _, r := range sc.steps {
		if r.Err != nil {
			return false
		}
	}
	for _, r := range sc.cleanups {
		if r.Err != nil {
			return false
		}
	}
	return true
}

// Failed is the negation of Passed.
func (sc *ScenarioContext) Failed() bool { return !sc.Passed() }

// FailedSteps returns the results that carry a non-skip error.
func (sc *ScenarioContext) FailedSteps() []StepResult {
	var out []StepResult
	for _, r := range sc.steps {
		if r.Err != nil && !r.Skipped() {
			out = append(out, r)
		}
	}
	return out
}

// Duration is the wall time of the run, zero until it finished.
func (sc *ScenarioContext) Duration() time.Duration {
	if sc.StartedAt.IsZero() || sc.FinishedAt.IsZero() {
		return 0
	}
	return sc.FinishedAt.Sub(sc.StartedAt)
}

// AppendStep records a step result.
func (sc *ScenarioContext) AppendStep(r StepResult) {
	sc.steps = append(sc.steps, r)
}

// AppendIO records step lineage.
func (sc *ScenarioContext) AppendIO(io StepIO) {
	sc.io = append(sc.io, io)
}

// AppendCleanup records the result of a cleanup step.
func (sc *ScenarioContext) AppendCleanup(r StepResult) {
	sc.cleanups = append(sc.cleanups, r)
}

// AdvanceCurrentItem sets the current value after a successful step.
func (sc *ScenarioContext) AdvanceCurrentItem(v any) {
	sc.current = v
}

// SetCurrentItem seeds the value the first step receives.
func (sc *ScenarioContext) SetCurrentItem(v any) {
	sc.current = v
}

// MarkStarted stamps the start of the run.
func (sc *ScenarioContext) MarkStarted(at time.Time) {
	sc.StartedAt = at
}

// MarkFinished stamps the end of the run and stores its outcome.
func (sc *ScenarioContext) MarkFinished(at time.Time, err error) {
	sc.FinishedAt = at
	sc.err = err
}

// SetCleanupRegistrar installs the registrar used by Defer. The pipeline
// sets it for the duration of a run and clears it afterwards.
func (sc *ScenarioContext) SetCleanupRegistrar(r CleanupRegistrar) {
	sc.registrar = r
}

// ErrNoActiveRun is returned by Defer outside of a running pipeline.
var ErrNoActiveRun = errors.New("scenario has no active run")

// Defer registers a cleanup step from inside a running step. The cleanup
// receives the CurrentItem as it is at the time of the call.
func (sc *ScenarioContext) Defer(title string, fn StepFunc) error {
	if sc.registrar == nil {
		return ErrNoActiveRun
	}
	sc.registrar.EnqueueCleanup(title, fn, sc.current)
	return nil
}
