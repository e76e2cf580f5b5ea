package api

import "context"

type scenarioCtxKey struct{}

// WithScenario attaches sc to ctx. The pipeline does this for every step
// invocation so helpers can reach the running scenario without it being
// passed explicitly.
func WithScenario(ctx context.Context, sc *ScenarioContext) context.Context {
	return context.WithValue(ctx, scenarioCtxKey{}, sc)
}

// ScenarioFromContext returns the scenario attached by WithScenario.
func ScenarioFromContext(ctx context.Context) (*ScenarioContext, bool) {
	sc, ok := ctx.Value(scenarioCtxKey{}).(*ScenarioContext)
	return sc, ok && sc != nil
}

// DeferCleanup registers a cleanup step on the scenario running in ctx.
// It returns ErrNoActiveRun when ctx carries no running scenario.
func DeferCleanup(ctx context.Context, title string, fn StepFunc) error {
	sc, ok := ScenarioFromContext(ctx)
	if !ok {
		return ErrNoActiveRun
	}
	return sc.Defer(title, fn)
}

// AddTag adds a tag to the scenario running in ctx. It is a no-op when ctx
// carries no scenario.
func AddTag(ctx context.Context, tag string) {
	if sc, ok := ScenarioFromContext(ctx); ok {
		sc.AddTag(tag)
	}
}
