package feature

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepflow/pkg/api"
)

func TestRegistry_FirstFullMatchWins(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(`I have (\d+) apples`, func(ctx context.Context, v any, args []string) (any, error) {
		return "first:" + args[0], nil
	})
	r.MustRegister(`I have (.*)`, func(ctx context.Context, v any, args []string) (any, error) {
		return "second:" + args[0], nil
	})

	fn, err := r.Resolve("I have 3 apples")
	require.NoError(t, err)
	out, err := fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "first:3", out)

	fn, err = r.Resolve("I have pears")
	require.NoError(t, err)
	out, err = fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "second:pears", out)

	assert.Equal(t, []string{`I have (\d+) apples`, `I have (.*)`}, r.Patterns())
}

func TestRegistry_PatternsAreAnchored(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(`apples`, func(ctx context.Context, v any, args []string) (any, error) { return v, nil })

	_, err := r.Resolve("green apples")
	assert.ErrorIs(t, err, ErrUndefinedStep)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(`(`, func(ctx context.Context, v any, args []string) (any, error) { return v, nil }))
	assert.Error(t, r.Register(`ok`, nil))
	assert.Panics(t, func() { r.MustRegister(`(`, nil) })
}

func TestRegistry_RegisterExpr(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterExpr(`the total is (\d+)`, `value === Number(args[0])`))
	require.NoError(t, r.RegisterExpr(`I triple it`, `value * 3`))

	ctx := context.Background()
	triple, err := r.Resolve("I triple it")
	require.NoError(t, err)
	out, err := triple(ctx, int64(4))
	require.NoError(t, err)
	assert.EqualValues(t, 12, out)

	total, err := r.Resolve("the total is 12")
	require.NoError(t, err)
	out, err = total(ctx, out)
	require.NoError(t, err)
	assert.EqualValues(t, 12, out)

	_, err = total(ctx, int64(11))
	assert.True(t, api.IsAssertionFailure(err))
}

func TestExprStep(t *testing.T) {
	ctx := context.Background()

	out, err := ExprStep("value + 1", api.PhaseWhen)(ctx, int64(1))
	require.NoError(t, err)
	assert.EqualValues(t, 2, out)

	out, err = ExprStep("undefined", api.PhaseWhen)(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", out)

	out, err = ExprStep("value > 0", api.PhaseThen)(ctx, int64(5))
	require.NoError(t, err)
	assert.EqualValues(t, 5, out)

	_, err = ExprStep("value > 10", api.PhaseThen)(ctx, int64(5))
	require.Error(t, err)
	assert.True(t, api.IsAssertionFailure(err))

	out, err = ExprStep("value > 10", api.PhaseGiven)(ctx, int64(5))
	require.NoError(t, err)
	assert.Equal(t, false, out)

	_, err = ExprStep("value.(", api.PhaseWhen)(ctx, 1)
	require.Error(t, err)
	assert.False(t, api.IsAssertionFailure(err))

	_, err = ExprStep("throw new Error('nope')", api.PhaseWhen)(ctx, 1)
	assert.ErrorContains(t, err, "nope")
}

func TestExprStep_SeesScenarioTags(t *testing.T) {
	sc := api.NewScenarioContext(api.ScenarioConfig{Tags: []string{"smoke"}})
	ctx := api.WithScenario(context.Background(), sc)

	_, err := ExprStep(`tags.includes("smoke")`, api.PhaseThen)(ctx, nil)
	assert.NoError(t, err)
	_, err = ExprStep(`tags.includes("slow")`, api.PhaseThen)(ctx, nil)
	assert.Error(t, err)
}

func TestExprStep_InterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ExprStep("while (true) {}", api.PhaseWhen)(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuiltins(t *testing.T) {
	r := DefaultRegistry()
	ctx := context.Background()

	run := func(text string, in any) (any, error) {
		t.Helper()
		fn, err := r.Resolve(text)
		require.NoError(t, err, text)
		return fn(ctx, in)
	}

	v, err := run("the value is 4", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	v, err = run("I add 3", v)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = run("I multiply by 0.5", v)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	v, err = run("I subtract 1.5", v)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = run("I divide by 4", v)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	_, err = run("I divide by 0", v)
	assert.Error(t, err)

	_, err = run("the value should be 0.5", v)
	assert.NoError(t, err)
	_, err = run("the value should be 2", v)
	assert.True(t, api.IsAssertionFailure(err))

	_, err = run("I add 1", "text")
	assert.Error(t, err)

	s, err := run(`the value is "gopher"`, nil)
	require.NoError(t, err)
	_, err = run(`the value should be "gopher"`, s)
	assert.NoError(t, err)
	_, err = run(`the value should contain "oph"`, s)
	assert.NoError(t, err)
	_, err = run(`the value should contain "xyz"`, s)
	assert.True(t, api.IsAssertionFailure(err))

	v, err = run("I wait 1ms", "same")
	require.NoError(t, err)
	assert.Equal(t, "same", v)
	_, err = run("I wait forever", nil)
	assert.Error(t, err)
}

func TestRegistry_ResolveAppendsExtraArgs(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.MustRegister(`note (\w+):`, func(ctx context.Context, v any, args []string) (any, error) {
		got = args
		return v, nil
	})
	fn, err := r.Resolve("note body:", "line one\nline two")
	require.NoError(t, err)
	_, err = fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "line one\nline two"}, got)
}
