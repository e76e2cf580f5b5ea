// Package stepflow runs behavior scenarios written as Given/When/Then
// steps.
//
// A scenario is an ordered list of steps. Each step receives the value the
// previous step produced and returns the next one, so a scenario reads like
// the story it tests:
//
//	sc, err := stepflow.NewScenario("Calculator", "adds two numbers").
//	    Given("the number 2", stepflow.Value(2)).
//	    When("I add 3", stepflow.Map(func(n int) int { return n + 3 })).
//	    Then("the result is 5", expect.Equal(5)).
//	    Run(ctx)
//
// # Core Concepts
//
//  1. StepFunc
//  2. Pipeline
//  3. ScenarioContext
//  4. ScenarioBuilder
//  5. Suite
//
// # StepFunc
//
// A StepFunc is the single executable unit:
//
//	type StepFunc func(ctx context.Context, value any) (any, error)
//
// ctx carries cancellation, the per-step timeout and the running scenario
// (see ScenarioFromContext and DeferCleanup). Typed adapters such as Func,
// Map, Action, Produce and Check remove the type assertions.
//
// # Pipeline
//
// A Pipeline is a single-use queue of steps bound to one ScenarioContext.
// And and But steps take the phase of the preceding primary step, resolved
// when they are enqueued. Running the pipeline drains the queue in order and
// then runs every cleanup step, whatever happened before.
//
// Failures are classified before deciding whether to stop:
//
//   - cancellation of the caller's context always stops the scenario
//   - assertion failures stop it when Options.HaltOnFailedAssertion is set
//   - step timeouts and other errors stop it unless Options.ContinueOnError
//
// When the scenario stops early and Options.MarkRemainingAsSkippedOnFailure
// is set, every step that did not run is recorded as skipped.
//
// # ScenarioContext
//
// The ScenarioContext records step results, step input/output lineage,
// cleanup results, tags and the final value. Reporters in pkg/report and the
// run history archive read it after the run.
//
// # ScenarioBuilder
//
// NewScenario returns a fluent builder. Every Run of a builder starts from a
// fresh ScenarioContext, so builders double as ScenarioRunners.
//
// # Suite
//
// A Suite runs independent scenarios concurrently on a small worker pool and
// can archive finished runs into SQLite with NewSQLiteSuite. Steps of one
// scenario never run in parallel.
//
// File-based scenarios (Gherkin text or YAML) live in pkg/feature, and the
// stepflow command runs them from the shell.
package stepflow
