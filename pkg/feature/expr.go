package feature

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/petrijr/stepflow/pkg/api"
)

type exprEnv struct {
	value any
	args  []string
	tags  []string

	// assert makes a boolean result an assertion: false fails the step and
	// true passes the input through.
	assert bool
}

// ExprStep returns a step evaluating expr with goja. The expression sees
// value (the current value), args (always empty here) and tags (the
// scenario's tags, read from the running scenario).
//
// In a Then step a boolean result is an assertion. Elsewhere the result
// becomes the next value, except undefined, which keeps the current one.
func ExprStep(expr string, phase api.Phase) api.StepFunc {
	return func(ctx context.Context, value any) (any, error) {
		env := exprEnv{value: value, assert: phase == api.PhaseThen}
		if sc, ok := api.ScenarioFromContext(ctx); ok {
			env.tags = sc.Tags()
		}
		return evalExpr(ctx, expr, env)
	}
}

func evalExpr(ctx context.Context, expr string, env exprEnv) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A runtime is not safe for concurrent use, so every evaluation gets
	// its own.
	vm := goja.New()
	args := env.args
	if args == nil {
		args = []string{}
	}
	tags := env.tags
	if tags == nil {
		tags = []string{}
	}
	for name, v := range map[string]any{"value": env.value, "args": args, "tags": tags} {
		if err := vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("expression %q: set %s: %w", expr, name, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	res, err := vm.RunString(expr)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("expression %q: %w", expr, err)
	}

	if res == nil || goja.IsUndefined(res) {
		return env.value, nil
	}
	out := res.Export()
	if b, ok := out.(bool); ok && env.assert {
		if !b {
			return nil, api.NewAssertionError("expression %q is false for value %v", expr, env.value)
		}
		return env.value, nil
	}
	return out, nil
}
