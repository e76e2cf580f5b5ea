package api

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SkippedMessage is the error text recorded for steps that never ran
// because an earlier step stopped the scenario.
const SkippedMessage = "Skipped due to previous failure."

var (
	// ErrSkipped marks a skip-marked step result.
	ErrSkipped = errors.New(SkippedMessage)

	// ErrPipelineConsumed is returned when Run is called on a pipeline
	// that has already run.
	ErrPipelineConsumed = errors.New("pipeline already run")
)

// AssertionError is raised by the assertion subsystem when an expectation
// does not hold. It is the failure kind HaltOnFailedAssertion reacts to.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	if e.Message == "" {
		return "assertion failed"
	}
	return "assertion failed: " + e.Message
}

// AssertionFailure marks AssertionError as an assertion-kind failure.
func (e *AssertionError) AssertionFailure() bool { return true }

// NewAssertionError returns an *AssertionError with a formatted message.
func NewAssertionError(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// IsAssertionFailure reports whether err (or anything it wraps) is an
// assertion-kind failure. Foreign assertion libraries can opt in by
// implementing AssertionFailure() bool.
func IsAssertionFailure(err error) bool {
	var af interface{ AssertionFailure() bool }
	if errors.As(err, &af) {
		return af.AssertionFailure()
	}
	return false
}

// StepTimeoutError is recorded when a step exceeds Options.StepTimeout.
type StepTimeoutError struct {
	Step    string
	Timeout time.Duration
	Cause   error
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %q timed out after %s", e.Step, e.Timeout)
}

// Unwrap exposes context.DeadlineExceeded and the error the step returned.
func (e *StepTimeoutError) Unwrap() []error {
	if e.Cause == nil {
		return []error{context.DeadlineExceeded}
	}
	return []error{context.DeadlineExceeded, e.Cause}
}

// PanicError wraps a value recovered from a panicking step function.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("step panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ScenarioError is returned by Pipeline.Run when a scenario fails fatally.
// It carries the scenario for diagnostics and the original cause.
type ScenarioError struct {
	Scenario *ScenarioContext
	Cause    error

	// Cleanup holds failures of cleanup steps, if any.
	Cleanup error
}

func (e *ScenarioError) Error() string {
	name := ""
	if e.Scenario != nil {
		name = e.Scenario.ScenarioName
	}
	msg := fmt.Sprintf("scenario %q failed: %v", name, e.Cause)
	if e.Cleanup != nil {
		msg += fmt.Sprintf(" (cleanup: %v)", e.Cleanup)
	}
	return msg
}

func (e *ScenarioError) Unwrap() []error {
	if e.Cleanup == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.Cleanup}
}

// FailureKind classifies a step failure for control flow.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureCancelled is cancellation requested by the caller of Run.
	FailureCancelled
	// FailureAssertion is an assertion-kind failure.
	FailureAssertion
	// FailureTimeout is a per-step timeout; it behaves like FailureStep.
	FailureTimeout
	// FailureStep is any other error.
	FailureStep
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureCancelled:
		return "cancelled"
	case FailureAssertion:
		return "assertion"
	case FailureTimeout:
		return "timeout"
	case FailureStep:
		return "step"
	default:
		return "unknown"
	}
}

// Fatal reports whether a failure of kind k stops the scenario under opts.
func (k FailureKind) Fatal(opts Options) bool {
	switch k {
	case FailureCancelled:
		return true
	case FailureAssertion:
		return opts.HaltOnFailedAssertion || !opts.ContinueOnError
	case FailureTimeout, FailureStep:
		return !opts.ContinueOnError
	default:
		return false
	}
}

// Classify decides the failure kind of err. callerCtx is the context the
// caller passed to Run; when it is done the failure is always a caller
// cancellation, whatever the step returned.
func Classify(callerCtx context.Context, err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if callerCtx != nil && callerCtx.Err() != nil {
		return FailureCancelled
	}
	var te *StepTimeoutError
	if errors.As(err, &te) {
		return FailureTimeout
	}
	if IsAssertionFailure(err) {
		return FailureAssertion
	}
	return FailureStep
}
