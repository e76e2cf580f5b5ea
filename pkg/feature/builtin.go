package feature

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

const number = `(-?\d+(?:\.\d+)?)`

// parseNumber returns an int64 for integral text and a float64 otherwise,
// matching what goja exports for JavaScript numbers.
func parseNumber(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// arith applies op to the current value and the step argument, keeping
// integers as int64 when both operands are integral.
func arith(value any, arg string, op func(a, b float64) float64, iop func(a, b int64) int64) (any, error) {
	b, err := parseNumber(arg)
	if err != nil {
		return nil, err
	}
	ai, aInt := value.(int64)
	if n, ok := value.(int); ok {
		ai, aInt = int64(n), true
	}
	if bi, bInt := b.(int64); aInt && bInt {
		return iop(ai, bi), nil
	}
	a, ok := toFloat(value)
	if !ok {
		return nil, fmt.Errorf("current value %v (%T) is not a number", value, value)
	}
	bf, _ := toFloat(b)
	return op(a, bf), nil
}

// RegisterBuiltins adds the built-in step library to r:
//
//	the value is <number>
//	the value is "<text>"
//	the value is the text:      (doc string)
//	the value is the table:     (data table)
//	I add <number>
//	I subtract <number>
//	I multiply by <number>
//	I divide by <number>
//	the value should be <number>
//	the value should be "<text>"
//	the value should contain "<text>"
//	I wait <duration>
func RegisterBuiltins(r *Registry) {
	r.MustRegister(`the value is `+number, func(ctx context.Context, _ any, args []string) (any, error) {
		return parseNumber(args[0])
	})
	r.MustRegister(`the value is "([^"]*)"`, func(ctx context.Context, _ any, args []string) (any, error) {
		return args[0], nil
	})
	r.MustRegister(`the value is the text:`, func(ctx context.Context, _ any, args []string) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("step needs a doc string")
		}
		return args[len(args)-1], nil
	})
	r.MustRegister(`the value is the table:`, func(ctx context.Context, _ any, _ []string) (any, error) {
		t, ok := StepTable(ctx)
		if !ok {
			return nil, fmt.Errorf("step needs a data table")
		}
		return t, nil
	})
	r.MustRegister(`I add `+number, func(ctx context.Context, v any, args []string) (any, error) {
		return arith(v, args[0], func(a, b float64) float64 { return a + b }, func(a, b int64) int64 { return a + b })
	})
	r.MustRegister(`I subtract `+number, func(ctx context.Context, v any, args []string) (any, error) {
		return arith(v, args[0], func(a, b float64) float64 { return a - b }, func(a, b int64) int64 { return a - b })
	})
	r.MustRegister(`I multiply by `+number, func(ctx context.Context, v any, args []string) (any, error) {
		return arith(v, args[0], func(a, b float64) float64 { return a * b }, func(a, b int64) int64 { return a * b })
	})
	r.MustRegister(`I divide by `+number, func(ctx context.Context, v any, args []string) (any, error) {
		d, err := parseNumber(args[0])
		if err != nil {
			return nil, err
		}
		if f, _ := toFloat(d); f == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		a, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("current value %v (%T) is not a number", v, v)
		}
		f, _ := toFloat(d)
		return a / f, nil
	})
	r.MustRegister(`the value should be `+number, func(ctx context.Context, v any, args []string) (any, error) {
		want, err := parseNumber(args[0])
		if err != nil {
			return nil, err
		}
		wf, _ := toFloat(want)
		got, ok := toFloat(v)
		if !ok || math.Abs(got-wf) > 1e-9 {
			return nil, api.NewAssertionError("expected %s, got %v", args[0], v)
		}
		return v, nil
	})
	r.MustRegister(`the value should be "([^"]*)"`, func(ctx context.Context, v any, args []string) (any, error) {
		if s, ok := v.(string); !ok || s != args[0] {
			return nil, api.NewAssertionError("expected %q, got %v", args[0], v)
		}
		return v, nil
	})
	r.MustRegister(`the value should contain "([^"]*)"`, func(ctx context.Context, v any, args []string) (any, error) {
		if !strings.Contains(fmt.Sprint(v), args[0]) {
			return nil, api.NewAssertionError("expected %v to contain %q", v, args[0])
		}
		return v, nil
	})
	r.MustRegister(`I wait (\S+)`, func(ctx context.Context, v any, args []string) (any, error) {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return nil, err
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// DefaultRegistry returns a registry holding the built-in steps.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}
