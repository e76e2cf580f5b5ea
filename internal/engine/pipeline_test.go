package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepflow/pkg/api"
)

func newScenario(opts api.Options) *api.ScenarioContext {
	return api.NewScenarioContext(api.ScenarioConfig{
		FeatureName:  "Arithmetic",
		ScenarioName: "increment",
		Options:      &opts,
	})
}

func value(v any) api.StepFunc {
	return func(ctx context.Context, _ any) (any, error) { return v, nil }
}

func addOne(ctx context.Context, in any) (any, error) {
	return in.(int) + 1, nil
}

func fail(msg string) api.StepFunc {
	return func(ctx context.Context, _ any) (any, error) { return nil, errors.New(msg) }
}

// equals passes its input through when it matches want.
func equals(want int) api.StepFunc {
	return func(ctx context.Context, in any) (any, error) {
		if in != want {
			return nil, api.NewAssertionError("expected %d, got %v", want, in)
		}
		return in, nil
	}
}

func stepErrors(steps []api.StepResult) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		if s.Err != nil {
			out[i] = s.Err.Error()
		}
	}
	return out
}

func TestPipeline_AllStepsPass(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "+1", addOne)
	p.Enqueue(api.PhaseThen, api.WordPrimary, "==2", equals(2))

	require.NoError(t, p.Run(context.Background()))

	steps := sc.Steps()
	require.Len(t, steps, 3)
	require.Len(t, sc.IO(), 3)
	for _, s := range steps {
		assert.NoError(t, s.Err)
	}
	assert.Equal(t, 2, sc.CurrentItem())
	assert.True(t, sc.Passed())
	assert.Equal(t, []string{"Given", "When", "Then"}, []string{steps[0].Kind, steps[1].Kind, steps[2].Kind})
	assert.False(t, sc.StartedAt.IsZero())
	assert.False(t, sc.FinishedAt.Before(sc.StartedAt))
}

func TestPipeline_IORecordsLineage(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "+1", addOne)

	require.NoError(t, p.Run(context.Background()))

	io := sc.IO()
	require.Len(t, io, 2)
	assert.Nil(t, io[0].Input)
	assert.Equal(t, 1, io[0].Output)
	assert.Equal(t, 1, io[1].Input)
	assert.Equal(t, 2, io[1].Output)
}

func TestPipeline_FailureStopsAndSkipsRemaining(t *testing.T) {
	sc := newScenario(api.Options{MarkRemainingAsSkippedOnFailure: true})
	p := NewPipeline(sc)

	thenCalled := false
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "boom", fail("boom"))
	p.Enqueue(api.PhaseThen, api.WordPrimary, "never", func(ctx context.Context, in any) (any, error) {
		thenCalled = true
		return in, nil
	})

	err := p.Run(context.Background())
	require.Error(t, err)

	var scErr *api.ScenarioError
	require.ErrorAs(t, err, &scErr)
	assert.Same(t, sc, scErr.Scenario)
	assert.EqualError(t, scErr.Cause, "boom")

	assert.False(t, thenCalled)
	assert.Equal(t, []string{"", "boom", api.SkippedMessage}, stepErrors(sc.Steps()))
	assert.True(t, sc.Steps()[2].Skipped())
	assert.Equal(t, "never", sc.Steps()[2].Title)
	assert.Len(t, sc.IO(), 1)
	assert.Equal(t, 1, sc.CurrentItem())
	assert.Equal(t, err, sc.Err())
}

func TestPipeline_FailureWithoutSkipMarking(t *testing.T) {
	sc := newScenario(api.Options{})
	p := NewPipeline(sc)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "boom", fail("boom"))
	p.Enqueue(api.PhaseThen, api.WordPrimary, "never", equals(1))

	require.Error(t, p.Run(context.Background()))
	assert.Equal(t, []string{"", "boom"}, stepErrors(sc.Steps()))
}

func TestPipeline_ContinueOnError(t *testing.T) {
	sc := newScenario(api.Options{ContinueOnError: true, MarkRemainingAsSkippedOnFailure: true})
	p := NewPipeline(sc)

	var thenInput any
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "boom", fail("boom"))
	p.Enqueue(api.PhaseThen, api.WordPrimary, "check", func(ctx context.Context, in any) (any, error) {
		thenInput = in
		return in, nil
	})

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []string{"", "boom", ""}, stepErrors(sc.Steps()))
	assert.Equal(t, 1, thenInput)
	assert.Equal(t, 1, sc.CurrentItem())
	assert.Len(t, sc.IO(), 2)
	assert.True(t, sc.Failed())
	assert.NoError(t, sc.Err())
}

func TestPipeline_StepTimeoutIsOrdinaryFailure(t *testing.T) {
	sc := newScenario(api.Options{ContinueOnError: true, StepTimeout: 20 * time.Millisecond})
	p := NewPipeline(sc)

	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "slow", func(ctx context.Context, in any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return in, nil
		}
	})
	p.Enqueue(api.PhaseThen, api.WordPrimary, "still runs", equals(1))

	require.NoError(t, p.Run(context.Background()))

	steps := sc.Steps()
	require.Len(t, steps, 3)
	var te *api.StepTimeoutError
	require.ErrorAs(t, steps[1].Err, &te)
	assert.Equal(t, "slow", te.Step)
	assert.ErrorIs(t, steps[1].Err, context.DeadlineExceeded)
	assert.NoError(t, steps[2].Err)
}

func TestPipeline_StepTimeoutStopsWithoutContinueOnError(t *testing.T) {
	sc := newScenario(api.Options{StepTimeout: 10 * time.Millisecond, MarkRemainingAsSkippedOnFailure: true})
	p := NewPipeline(sc)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "slow", func(ctx context.Context, in any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p.Enqueue(api.PhaseThen, api.WordPrimary, "skipped", value(2))

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.True(t, sc.Steps()[1].Skipped())
}

func TestPipeline_CallerCancellationAlwaysFatal(t *testing.T) {
	for _, continueOnError := range []bool{false, true} {
		sc := newScenario(api.Options{ContinueOnError: continueOnError, MarkRemainingAsSkippedOnFailure: true})
		p := NewPipeline(sc)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
		p.Enqueue(api.PhaseWhen, api.WordPrimary, "cancel", func(stepCtx context.Context, in any) (any, error) {
			cancel()
			<-stepCtx.Done()
			return nil, stepCtx.Err()
		})
		p.Enqueue(api.PhaseThen, api.WordPrimary, "after", equals(1))

		err := p.Run(ctx)
		require.Error(t, err, "continueOnError=%v", continueOnError)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []string{"", context.Canceled.Error(), api.SkippedMessage}, stepErrors(sc.Steps()))
	}
}

func TestPipeline_StepTimeoutFailsStepIgnoringContext(t *testing.T) {
	sc := newScenario(api.Options{ContinueOnError: true, StepTimeout: 5 * time.Millisecond})
	p := NewPipeline(sc)

	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "stubborn", func(ctx context.Context, in any) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return 42, nil
	})
	p.Enqueue(api.PhaseThen, api.WordPrimary, "unchanged", equals(1))

	require.NoError(t, p.Run(context.Background()))

	steps := sc.Steps()
	require.Len(t, steps, 3)
	var te *api.StepTimeoutError
	require.ErrorAs(t, steps[1].Err, &te)
	assert.Equal(t, "stubborn", te.Step)
	assert.NoError(t, steps[2].Err)
	assert.Equal(t, 1, sc.CurrentItem())
	assert.Len(t, sc.IO(), 2)
}

func TestPipeline_CancellationDuringLastStepIsFatal(t *testing.T) {
	for _, continueOnError := range []bool{false, true} {
		sc := newScenario(api.Options{ContinueOnError: continueOnError})
		p := NewPipeline(sc)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
		p.Enqueue(api.PhaseWhen, api.WordPrimary, "slow", func(stepCtx context.Context, in any) (any, error) {
			cancel()
			time.Sleep(10 * time.Millisecond)
			return in, nil
		})

		err := p.Run(ctx)
		require.Error(t, err, "continueOnError=%v", continueOnError)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []string{"", context.Canceled.Error()}, stepErrors(sc.Steps()))
		assert.Equal(t, 1, sc.CurrentItem())
	}
}

func TestPipeline_CancellationWinsOverStepTimeout(t *testing.T) {
	sc := newScenario(api.Options{ContinueOnError: true, StepTimeout: time.Second})
	p := NewPipeline(sc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Enqueue(api.PhaseWhen, api.WordPrimary, "wait", func(stepCtx context.Context, in any) (any, error) {
		time.AfterFunc(10*time.Millisecond, cancel)
		<-stepCtx.Done()
		return nil, stepCtx.Err()
	})

	err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var te *api.StepTimeoutError
	assert.False(t, errors.As(sc.Steps()[0].Err, &te))
}

func TestPipeline_CancelledBeforeStepStarts(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)

	called := false
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "never", func(ctx context.Context, in any) (any, error) {
		called = true
		return in, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	require.Len(t, sc.Steps(), 1)
	assert.ErrorIs(t, sc.Steps()[0].Err, context.Canceled)
}

func TestPipeline_AssertionHaltBypassesContinueOnError(t *testing.T) {
	sc := newScenario(api.Options{ContinueOnError: true, HaltOnFailedAssertion: true, MarkRemainingAsSkippedOnFailure: true})
	p := NewPipeline(sc)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseThen, api.WordPrimary, "==5", equals(5))
	p.EnqueueInherit("and more", equals(1), api.WordAnd)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsAssertionFailure(err))
	assert.True(t, sc.Steps()[2].Skipped())
}

func TestPipeline_AssertionWithoutHaltFollowsContinueOnError(t *testing.T) {
	sc := newScenario(api.Options{ContinueOnError: true})
	p := NewPipeline(sc)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseThen, api.WordPrimary, "==5", equals(5))
	p.EnqueueInherit("", equals(1), api.WordAnd)

	require.NoError(t, p.Run(context.Background()))
	steps := sc.Steps()
	require.Len(t, steps, 3)
	assert.True(t, api.IsAssertionFailure(steps[1].Err))
	assert.NoError(t, steps[2].Err)
}

func TestPipeline_InheritResolvesPhaseAtBuildTime(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)

	p.EnqueueInherit("before any primary", value(0), api.WordAnd)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.EnqueueInherit("", value(1), api.WordAnd)
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "act", value(2))
	p.EnqueueInherit("but", value(2), api.WordBut)
	p.Enqueue(api.PhaseThen, api.WordAnd, "explicit and", value(2))
	p.EnqueueInherit("", value(2), api.WordAnd)

	require.NoError(t, p.Run(context.Background()))

	steps := sc.Steps()
	require.Len(t, steps, 7)

	want := []struct {
		kind  string
		title string
		phase api.Phase
	}{
		{"And", "before any primary", api.PhaseGiven},
		{"Given", "seed", api.PhaseGiven},
		{"And", "Given", api.PhaseGiven},
		{"When", "act", api.PhaseWhen},
		{"But", "but", api.PhaseWhen},
		{"And", "explicit and", api.PhaseThen},
		// An explicit And does not change the phase continuations inherit.
		{"And", "When", api.PhaseWhen},
	}
	for i, w := range want {
		assert.Equal(t, w.kind, steps[i].Kind, "step %d kind", i)
		assert.Equal(t, w.title, steps[i].Title, "step %d title", i)
		assert.Equal(t, w.phase, steps[i].Phase, "step %d phase", i)
	}
}

func TestPipeline_EmptyTitleFallsBackToPhase(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)

	var seen []api.StepMetadata
	p.SetBeforeStep(func(_ *api.ScenarioContext, m api.StepMetadata) { seen = append(seen, m) })
	p.Enqueue(api.PhaseThen, api.WordPrimary, "", value(1))

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, seen, 1)
	assert.Equal(t, "Then", seen[0].Title)
	assert.Equal(t, "Then", sc.Steps()[0].Title)
	assert.Equal(t, "Then", sc.IO()[0].Title)
}

func TestPipeline_HooksFireInOrder(t *testing.T) {
	sc := newScenario(api.Options{MarkRemainingAsSkippedOnFailure: true})
	p := NewPipeline(sc)

	var events []string
	p.SetBeforeStep(func(_ *api.ScenarioContext, m api.StepMetadata) {
		events = append(events, "before:"+m.Title)
	})
	p.SetAfterStep(func(_ *api.ScenarioContext, r api.StepResult) {
		events = append(events, "after:"+r.Title+":"+r.Status())
	})

	p.Enqueue(api.PhaseGiven, api.WordPrimary, "a", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "b", fail("b"))
	p.Enqueue(api.PhaseThen, api.WordPrimary, "c", value(3))

	require.Error(t, p.Run(context.Background()))
	assert.Equal(t, []string{
		"before:a", "after:a:passed",
		"before:b", "after:b:failed",
		"after:c:skipped",
	}, events)
}

func TestPipeline_HookSeesRecordedResult(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)

	var counts []int
	p.SetAfterStep(func(s *api.ScenarioContext, _ api.StepResult) { counts = append(counts, len(s.Steps())) })
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "a", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "b", value(2))

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []int{1, 2}, counts)
}

func TestPipeline_HookPanicRunsCleanupThenPanics(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)

	cleaned := false
	p.SetBeforeStep(func(*api.ScenarioContext, api.StepMetadata) { panic("hook") })
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "a", value(1))
	p.EnqueueCleanup("cleanup", func(ctx context.Context, _ any) (any, error) {
		cleaned = true
		return nil, nil
	}, nil)

	assert.PanicsWithValue(t, "hook", func() { _ = p.Run(context.Background()) })
	assert.True(t, cleaned)
	assert.Error(t, sc.Err())
}

func TestPipeline_HookPanicNotifiesScenarioFailed(t *testing.T) {
	obs := &recordingObserver{}
	sc := newScenario(api.DefaultOptions())
	p := NewPipelineWithConfig(Config{Scenario: sc, Observer: obs})
	p.SetAfterStep(func(*api.ScenarioContext, api.StepResult) { panic("after") })
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "a", value(1))

	assert.PanicsWithValue(t, "after", func() { _ = p.Run(context.Background()) })
	assert.Equal(t, []string{"scenario_start", "start:a", "scenario_failed"}, obs.events)
	assert.ErrorContains(t, sc.Err(), "step hook panicked: after")
}

func TestPipeline_StepPanicBecomesFailure(t *testing.T) {
	sc := newScenario(api.Options{ContinueOnError: true})
	p := NewPipeline(sc)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "panics", func(ctx context.Context, in any) (any, error) {
		panic("kaboom")
	})
	p.Enqueue(api.PhaseThen, api.WordPrimary, "after", equals(1))

	require.NoError(t, p.Run(context.Background()))

	var pe *api.PanicError
	require.ErrorAs(t, sc.Steps()[1].Err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.NoError(t, sc.Steps()[2].Err)
}

func TestPipeline_CleanupOrderAndCapturedValues(t *testing.T) {
	type call struct {
		title string
		value any
	}

	cases := []struct {
		name    string
		opts    api.Options
		middle  api.StepFunc
		wantErr bool
	}{
		{name: "success", opts: api.DefaultOptions(), middle: addOne},
		{name: "early stop", opts: api.DefaultOptions(), middle: fail("boom"), wantErr: true},
		{name: "continue", opts: api.Options{ContinueOnError: true}, middle: fail("boom")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := newScenario(tc.opts)
			p := NewPipeline(sc)

			var calls []call
			record := func(title string) api.StepFunc {
				return func(ctx context.Context, v any) (any, error) {
					calls = append(calls, call{title, v})
					return nil, nil
				}
			}

			p.EnqueueCleanup("explicit", record("explicit"), "captured")
			p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
			p.EnqueueCleanupHere("after seed", record("after seed"))
			p.Enqueue(api.PhaseWhen, api.WordPrimary, "middle", tc.middle)
			p.EnqueueCleanupHere("after middle", record("after middle"))
			p.Enqueue(api.PhaseThen, api.WordPrimary, "last", value(99))
			p.EnqueueCleanupHere("at end", record("at end"))

			err := p.Run(context.Background())
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			require.Len(t, calls, 4)
			assert.Equal(t, []string{"explicit", "after seed", "after middle", "at end"},
				[]string{calls[0].title, calls[1].title, calls[2].title, calls[3].title})
			assert.Equal(t, "captured", calls[0].value)
			assert.Equal(t, 1, calls[1].value)
			assert.Len(t, sc.Cleanups(), 4)

			switch tc.name {
			case "success":
				assert.Equal(t, 2, calls[2].value)
				assert.Equal(t, 99, calls[3].value)
			case "early stop":
				// The run never got past "middle": the last good value is captured.
				assert.Equal(t, 1, calls[2].value)
				assert.Equal(t, 1, calls[3].value)
			case "continue":
				assert.Equal(t, 1, calls[2].value)
				assert.Equal(t, 99, calls[3].value)
			}
		})
	}
}

func TestPipeline_CleanupRunsAfterCancellationWithLiveContext(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)

	ctx, cancel := context.WithCancel(context.Background())
	var cleanupCtxErr error
	ran := false

	p.Enqueue(api.PhaseGiven, api.WordPrimary, "cancel", func(stepCtx context.Context, in any) (any, error) {
		cancel()
		return nil, stepCtx.Err()
	})
	p.EnqueueCleanup("cleanup", func(cctx context.Context, _ any) (any, error) {
		ran = true
		cleanupCtxErr = cctx.Err()
		return nil, nil
	}, nil)

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, ran)
	assert.NoError(t, cleanupCtxErr)
}

func TestPipeline_CleanupFailures(t *testing.T) {
	t.Run("fails an otherwise passing run", func(t *testing.T) {
		sc := newScenario(api.DefaultOptions())
		p := NewPipeline(sc)

		second := false
		p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
		p.EnqueueCleanup("bad", fail("cleanup broke"), nil)
		p.EnqueueCleanup("good", func(ctx context.Context, _ any) (any, error) {
			second = true
			return nil, nil
		}, nil)

		err := p.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cleanup broke")
		assert.True(t, second)
		assert.Equal(t, "failed", sc.Cleanups()[0].Status())
		assert.Equal(t, "passed", sc.Cleanups()[1].Status())
	})

	t.Run("ignored with ContinueOnError", func(t *testing.T) {
		sc := newScenario(api.Options{ContinueOnError: true})
		p := NewPipeline(sc)
		p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
		p.EnqueueCleanup("bad", fail("cleanup broke"), nil)

		require.NoError(t, p.Run(context.Background()))
		assert.False(t, sc.Passed())
	})

	t.Run("attached to a fatal error", func(t *testing.T) {
		sc := newScenario(api.DefaultOptions())
		p := NewPipeline(sc)
		p.Enqueue(api.PhaseGiven, api.WordPrimary, "boom", fail("boom"))
		p.EnqueueCleanup("bad", fail("cleanup broke"), nil)

		err := p.Run(context.Background())
		var scErr *api.ScenarioError
		require.ErrorAs(t, err, &scErr)
		assert.EqualError(t, scErr.Cause, "boom")
		require.Error(t, scErr.Cleanup)
		assert.Contains(t, scErr.Cleanup.Error(), "cleanup broke")
	})
}

func TestPipeline_DeferFromRunningStepCapturesCurrentValue(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)

	var got any
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(10))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "open resource", func(ctx context.Context, in any) (any, error) {
		err := api.DeferCleanup(ctx, "close resource", func(ctx context.Context, v any) (any, error) {
			got = v
			return nil, nil
		})
		return in.(int) + 1, err
	})
	p.Enqueue(api.PhaseThen, api.WordPrimary, "later", value(500))

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 10, got)
	require.Len(t, sc.Cleanups(), 1)
	assert.Equal(t, "close resource", sc.Cleanups()[0].Title)

	assert.ErrorIs(t, sc.Defer("late", value(nil)), api.ErrNoActiveRun)
}

func TestPipeline_StepSeesScenarioInContext(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	p := NewPipeline(sc)

	p.Enqueue(api.PhaseGiven, api.WordPrimary, "tag it", func(ctx context.Context, in any) (any, error) {
		got, ok := api.ScenarioFromContext(ctx)
		if !ok || got != sc {
			return nil, errors.New("scenario missing from context")
		}
		api.AddTag(ctx, "touched")
		return in, nil
	})

	require.NoError(t, p.Run(context.Background()))
	assert.True(t, sc.HasTag("touched"))
}

func TestPipeline_RunIsSingleUse(t *testing.T) {
	calls := 0
	p := NewPipeline(newScenario(api.DefaultOptions()))
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "once", func(ctx context.Context, in any) (any, error) {
		calls++
		return in, nil
	})

	require.NoError(t, p.Run(context.Background()))
	assert.ErrorIs(t, p.Run(context.Background()), api.ErrPipelineConsumed)
	assert.Equal(t, 1, calls)
	assert.Len(t, p.Context().Steps(), 1)
}

func TestPipeline_ResultsAreStableAfterRun(t *testing.T) {
	sc := newScenario(api.Options{ContinueOnError: true})
	p := NewPipeline(sc)
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "boom", fail("boom"))
	require.NoError(t, p.Run(context.Background()))

	first := sc.Steps()
	firstIO := sc.IO()
	first[0].Title = "mutated by caller"

	assert.NotEqual(t, first, sc.Steps())
	assert.Equal(t, sc.Steps(), sc.Steps())
	assert.Equal(t, firstIO, sc.IO())
}

func TestPipeline_NilStepFuncPanics(t *testing.T) {
	p := NewPipeline(nil)
	assert.Panics(t, func() { p.Enqueue(api.PhaseGiven, api.WordPrimary, "nil", nil) })
	assert.Panics(t, func() { p.EnqueueCleanup("nil", nil, nil) })
	assert.NotNil(t, p.Context())
}

// panickyObserver panics on every step completion.
type panickyObserver struct {
	api.NoopObserver
}

func (panickyObserver) OnStepCompleted(context.Context, *api.ScenarioContext, api.StepResult, int) {
	panic("observer broke")
}

func TestPipeline_ObserverPanicDoesNotMaskOutcome(t *testing.T) {
	sc := newScenario(api.DefaultOptions())
	metrics := &api.BasicMetrics{}
	p := NewPipelineWithConfig(Config{
		Scenario: sc,
		Observer: api.NewCompositeObserver(metrics, panickyObserver{}),
	})
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "+1", addOne)

	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, sc.Steps(), 2)
	assert.Equal(t, 2, sc.CurrentItem())

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.ScenariosCompleted)
	assert.Equal(t, int64(2), snap.StepsPassed)
}

// recordingObserver stores event names in order.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) OnScenarioStart(context.Context, *api.ScenarioContext) {
	o.add("scenario_start")
}
func (o *recordingObserver) OnScenarioCompleted(context.Context, *api.ScenarioContext) {
	o.add("scenario_completed")
}
func (o *recordingObserver) OnScenarioFailed(context.Context, *api.ScenarioContext, error) {
	o.add("scenario_failed")
}
func (o *recordingObserver) OnStepStart(_ context.Context, _ *api.ScenarioContext, m api.StepMetadata, _ int) {
	o.add("start:" + m.Title)
}
func (o *recordingObserver) OnStepCompleted(_ context.Context, _ *api.ScenarioContext, r api.StepResult, _ int) {
	o.add("done:" + r.Title)
}
func (o *recordingObserver) OnStepSkipped(_ context.Context, _ *api.ScenarioContext, r api.StepResult, _ int) {
	o.add("skip:" + r.Title)
}

func TestPipeline_ObserverSequence(t *testing.T) {
	obs := &recordingObserver{}
	sc := newScenario(api.DefaultOptions())
	p := NewPipelineWithConfig(Config{Scenario: sc, Observer: obs})
	p.Enqueue(api.PhaseGiven, api.WordPrimary, "a", value(1))
	p.Enqueue(api.PhaseWhen, api.WordPrimary, "b", fail("b"))
	p.Enqueue(api.PhaseThen, api.WordPrimary, "c", value(3))

	require.Error(t, p.Run(context.Background()))
	assert.Equal(t, []string{
		"scenario_start",
		"start:a", "done:a",
		"start:b", "done:b",
		"skip:c",
		"scenario_failed",
	}, obs.events)
}

func TestPipeline_IndependentScenariosRunConcurrently(t *testing.T) {
	metrics := &api.BasicMetrics{}

	var wg sync.WaitGroup
	contexts := make([]*api.ScenarioContext, 16)
	for i := range contexts {
		contexts[i] = newScenario(api.DefaultOptions())
		wg.Add(1)
		go func(sc *api.ScenarioContext, seed int) {
			defer wg.Done()
			p := NewPipelineWithConfig(Config{Scenario: sc, Observer: metrics})
			p.Enqueue(api.PhaseGiven, api.WordPrimary, "seed", value(seed))
			p.Enqueue(api.PhaseWhen, api.WordPrimary, "+1", addOne)
			_ = p.Run(context.Background())
		}(contexts[i], i)
	}
	wg.Wait()

	for i, sc := range contexts {
		assert.Equal(t, i+1, sc.CurrentItem())
	}
	assert.Equal(t, int64(16), metrics.Snapshot().ScenariosCompleted)
}
