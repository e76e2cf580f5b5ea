package stepflow

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// as converts a step input to I. A nil input becomes the zero I.
func as[I any](value any) (I, error) {
	var zero I
	if value == nil {
		return zero, nil
	}
	v, ok := value.(I)
	if !ok {
		return zero, fmt.Errorf("stepflow: step expects %T, got %T", zero, value)
	}
	return v, nil
}

// Value returns a step that ignores its input and yields v.
func Value(v any) StepFunc {
	return func(ctx context.Context, _ any) (any, error) {
		return v, nil
	}
}

// Func wraps a strongly-typed function into a StepFunc.
// Example:
//
//	stepflow.Func(func(ctx context.Context, n int) (string, error) { ... })
func Func[I, O any](fn func(context.Context, I) (O, error)) StepFunc {
	return func(ctx context.Context, value any) (any, error) {
		in, err := as[I](value)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// Map wraps an infallible typed transformation.
func Map[I, O any](fn func(I) O) StepFunc {
	return Func(func(_ context.Context, in I) (O, error) {
		return fn(in), nil
	})
}

// Action wraps a function with no output. The step passes its input
// through, so the current value is unchanged.
func Action[I any](fn func(context.Context, I) error) StepFunc {
	return func(ctx context.Context, value any) (any, error) {
		in, err := as[I](value)
		if err != nil {
			return nil, err
		}
		if err := fn(ctx, in); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Do wraps a function that needs neither input nor output.
func Do(fn func(context.Context) error) StepFunc {
	return func(ctx context.Context, value any) (any, error) {
		if err := fn(ctx); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// Produce wraps a function that ignores the input.
func Produce[O any](fn func(context.Context) (O, error)) StepFunc {
	return func(ctx context.Context, _ any) (any, error) {
		return fn(ctx)
	}
}

// Check returns an assertion step. It fails with an *AssertionError when
// pred returns false and otherwise passes its input through.
func Check[I any](pred func(I) bool) StepFunc {
	return func(ctx context.Context, value any) (any, error) {
		in, err := as[I](value)
		if err != nil {
			return nil, err
		}
		if !pred(in) {
			return nil, api.NewAssertionError("check failed for value %v", value)
		}
		return value, nil
	}
}

// Sleep returns a step that waits for d and passes its input through.
// It returns early with the context error when ctx is done.
func Sleep(d time.Duration) StepFunc {
	return func(ctx context.Context, value any) (any, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
