// Package api contains the core building blocks used by the stepflow
// scenario engine: step records, the scenario context, the pipeline
// contract, observers and the failure taxonomy.
//
// Most users interact with the higher-level stepflow package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations such as file-based executors,
// reporters and assertion libraries.
//
// # Steps
//
// Every step reduces to one function shape:
//
//	type StepFunc func(ctx context.Context, value any) (any, error)
//
// The value is whatever the previous successful step returned. Steps are
// tagged with a Phase (Given, When, Then) and a Word (Primary, And, But);
// And/But steps continue the phase of the primary step before them.
//
// # Scenario Context
//
// A ScenarioContext holds the identity of one scenario run (feature and
// scenario names, tags, options) and accumulates its results: one
// StepResult per processed queue entry, one StepIO per successful step,
// the results of cleanup steps and the current value. It has a single
// writer, the pipeline, and is read by reporters once the run finished.
//
// # Failures
//
// Step failures are classified with Classify:
//
//   - caller cancellation is always fatal
//   - assertion failures are fatal when Options.HaltOnFailedAssertion is set
//   - per-step timeouts and any other error are fatal unless
//     Options.ContinueOnError is set
//
// Entries left in the queue after a fatal failure are recorded with
// ErrSkipped when Options.MarkRemainingAsSkippedOnFailure is set. A fatal
// run returns a *ScenarioError carrying the scenario and the cause.
//
// # Observability
//
// Observers receive scenario and step lifecycle events. Ready-made
// implementations log with log/slog (LoggingObserver) or count events
// (BasicMetrics); NewCompositeObserver combines several.
package api
