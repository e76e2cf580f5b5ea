// Package expect builds assertion steps on top of testify's assert package.
//
// Failures are returned as *api.AssertionError, so the pipeline classifies
// them as assertion failures and Options.HaltOnFailedAssertion applies.
// Assertion steps pass their input through, leaving the current value
// unchanged.
package expect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"

	"github.com/petrijr/stepflow/pkg/api"
)

// Collector is an assert.TestingT that records failure messages instead of
// failing a test.
type Collector struct {
	mu       sync.Mutex
	failures []string
}

var _ assert.TestingT = (*Collector)(nil)

func (c *Collector) Errorf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Failed reports whether any assertion failed.
func (c *Collector) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures) > 0
}

// Err returns the collected failures as one *api.AssertionError, or nil.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.failures) == 0 {
		return nil
	}
	return &api.AssertionError{Message: strings.Join(c.failures, "\n")}
}

// That returns a step that runs check against the current value with a
// Collector and fails when any assertion inside check failed.
func That[T any](check func(t assert.TestingT, v T)) api.StepFunc {
	return func(ctx context.Context, value any) (any, error) {
		v, ok := value.(T)
		if !ok && value != nil {
			var zero T
			return nil, api.NewAssertionError("expected a %T value, got %T", zero, value)
		}
		c := &Collector{}
		check(c, v)
		if err := c.Err(); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Equal returns a step asserting the current value equals want.
func Equal[T any](want T) api.StepFunc {
	return That(func(t assert.TestingT, got T) {
		assert.Equal(t, want, got)
	})
}

// NotEqual returns a step asserting the current value differs from want.
func NotEqual[T any](want T) api.StepFunc {
	return That(func(t assert.TestingT, got T) {
		assert.NotEqual(t, want, got)
	})
}

// True returns a step asserting pred holds for the current value.
func True[T any](pred func(T) bool, msg string) api.StepFunc {
	return That(func(t assert.TestingT, got T) {
		assert.True(t, pred(got), msg)
	})
}

// Contains returns a step asserting the current value contains elem, with
// the semantics of assert.Contains.
func Contains(elem any) api.StepFunc {
	return That(func(t assert.TestingT, got any) {
		assert.Contains(t, got, elem)
	})
}

// Empty returns a step asserting the current value is empty.
func Empty() api.StepFunc {
	return That(func(t assert.TestingT, got any) {
		assert.Empty(t, got)
	})
}

// NoError returns a step asserting the current value is not a non-nil
// error. It is useful after steps that yield an error as their value.
func NoError() api.StepFunc {
	return That(func(t assert.TestingT, got any) {
		if err, ok := got.(error); ok {
			assert.NoError(t, err)
		}
	})
}
