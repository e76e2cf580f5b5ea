package api

import (
	"fmt"
	"time"
)

// Options controls how a pipeline reacts to failures.
// A pipeline reads them once, when Run starts.
type Options struct {
	// ContinueOnError keeps running later steps after an ordinary failure.
	// The failing step is still recorded and CurrentItem is left unchanged.
	ContinueOnError bool

	// HaltOnFailedAssertion stops the scenario on an assertion-kind failure
	// even when ContinueOnError is set.
	HaltOnFailedAssertion bool

	// MarkRemainingAsSkippedOnFailure appends a skip-marked result for every
	// entry left in the queue when the scenario stops early.
	MarkRemainingAsSkippedOnFailure bool

	// StepTimeout bounds each step. Zero or negative means no timeout.
	StepTimeout time.Duration
}

// DefaultOptions returns the options used when none are given: stop on the
// first failure, halt on assertions and skip-mark what is left.
func DefaultOptions() Options {
	return Options{
		HaltOnFailedAssertion:           true,
		MarkRemainingAsSkippedOnFailure: true,
	}
}

// HasStepTimeout reports whether a per-step timeout is configured.
func (o Options) HasStepTimeout() bool { return o.StepTimeout > 0 }

// String renders the options for logs.
func (o Options) String() string {
	return fmt.Sprintf("continue_on_error=%t halt_on_assertion=%t mark_skipped=%t step_timeout=%s",
		o.ContinueOnError, o.HaltOnFailedAssertion, o.MarkRemainingAsSkippedOnFailure, o.StepTimeout)
}
