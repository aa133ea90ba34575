package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

func newTestEngine(t *testing.T) (*Engine, kv.Store) {
	t.Helper()
	store, err := kv.NewMemoryStore(0)
	require.NoError(t, err)
	return New(store, nil, nil), store
}

func TestEngine_RunsStepsInOrderAndCompletes(t *testing.T) {
	e, _ := newTestEngine(t)
	var order []string

	steps := []Step{
		{Name: "one", Run: func(ctx context.Context) (interface{}, error) {
			order = append(order, "one")
			return "a", nil
		}},
		{Name: "two", Run: func(ctx context.Context) (interface{}, error) {
			order = append(order, "two")
			return "b", nil
		}},
	}

	inst, err := e.Start(context.Background(), "inst-1", "test", nil, steps)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowComplete, inst.Status)
	assert.Equal(t, []string{"one", "two"}, order)
	assert.Equal(t, 100, inst.Progress)
}

func TestEngine_CompletedStepIsNotReExecutedOnResume(t *testing.T) {
	e, _ := newTestEngine(t)
	calls := 0

	firstStep := Step{Name: "once", Run: func(ctx context.Context) (interface{}, error) {
		calls++
		return "done", nil
	}}
	failingStep := Step{Name: "boom", Run: func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("fails first time")
	}}

	_, err := e.Start(context.Background(), "inst-2", "test", nil, []Step{firstStep, failingStep})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	// Errored is terminal and never resumed; model a crash before the
	// failure was recorded by putting the durable record back to running.
	inst, err := e.LoadInstance(context.Background(), "inst-2")
	require.NoError(t, err)
	inst.Status = model.WorkflowRunning
	require.NoError(t, e.saveInstance(context.Background(), inst))

	succeedingStep := Step{Name: "boom", Run: func(ctx context.Context) (interface{}, error) {
		return "recovered", nil
	}}
	inst, err = e.Start(context.Background(), "inst-2", "test", nil, []Step{firstStep, succeedingStep})
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowComplete, inst.Status)
	assert.Equal(t, 1, calls, "the first step must not re-execute once it has a recorded output")
}

func TestEngine_RetriesAccordingToPolicyThenFails(t *testing.T) {
	e, _ := newTestEngine(t)
	attempts := 0

	steps := []Step{
		{
			Name:    "flaky",
			Retries: RetryPolicy{Limit: 2, Delay: time.Millisecond, Backoff: BackoffConstant},
			Run: func(ctx context.Context) (interface{}, error) {
				attempts++
				return nil, errors.New("still failing")
			},
		},
	}

	inst, err := e.Start(context.Background(), "inst-3", "test", nil, steps)
	require.Error(t, err)
	assert.Equal(t, model.WorkflowErrored, inst.Status)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, inst.Steps[0].Attempts)
}

func TestEngine_SucceedsAfterTransientFailures(t *testing.T) {
	e, _ := newTestEngine(t)
	attempts := 0

	steps := []Step{
		{
			Name:    "eventually",
			Retries: RetryPolicy{Limit: 3, Delay: time.Millisecond, Backoff: BackoffLinear},
			Run: func(ctx context.Context) (interface{}, error) {
				attempts++
				if attempts < 3 {
					return nil, errors.New("not yet")
				}
				return "ok", nil
			},
		},
	}

	inst, err := e.Start(context.Background(), "inst-4", "test", nil, steps)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowComplete, inst.Status)
	assert.Equal(t, 3, attempts)
}

func TestEngine_CancelledContextStopsRetryingImmediately(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	steps := []Step{
		{
			Name:    "cancel-me",
			Retries: RetryPolicy{Limit: 5, Delay: 10 * time.Millisecond, Backoff: BackoffConstant},
			Run: func(ctx context.Context) (interface{}, error) {
				attempts++
				cancel()
				return nil, errors.New("boom")
			},
		},
	}

	_, err := e.Start(ctx, "inst-5", "test", nil, steps)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestEngine_StepTimeoutCancelsRunContext(t *testing.T) {
	e, _ := newTestEngine(t)

	steps := []Step{
		{
			Name:    "slow",
			Timeout: 10 * time.Millisecond,
			Run: func(ctx context.Context) (interface{}, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	inst, err := e.Start(context.Background(), "inst-6", "test", nil, steps)
	require.Error(t, err)
	assert.Equal(t, model.WorkflowErrored, inst.Status)
}

func TestEngine_TerminalInstanceIsReturnedWithoutRerunningSteps(t *testing.T) {
	e, _ := newTestEngine(t)
	calls := 0
	step := Step{Name: "only", Run: func(ctx context.Context) (interface{}, error) {
		calls++
		return "done", nil
	}}

	_, err := e.Start(context.Background(), "inst-7", "test", nil, []Step{step})
	require.NoError(t, err)

	inst, err := e.Start(context.Background(), "inst-7", "test", nil, []Step{step})
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowComplete, inst.Status)
	assert.Equal(t, 1, calls)
}

func TestEngine_SleepReturnsImmediatelyIfWakeTimeAlreadyPassed(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Sleep(ctx, "inst-8", "pause", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	start := time.Now()
	require.NoError(t, e.Sleep(ctx, "inst-8", "pause", time.Hour))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestEngine_EventsRecordsStartStepAndCompletionNotices(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	steps := []Step{{Name: "only", Run: func(ctx context.Context) (interface{}, error) { return nil, nil }}}

	_, err := e.Start(ctx, "inst-9", "test", nil, steps)
	require.NoError(t, err)

	events, err := e.Events(ctx, "inst-9", 0)
	require.NoError(t, err)
	var names []string
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "workflow:started")
	assert.Contains(t, names, "step:started")
	assert.Contains(t, names, "step:completed")
	assert.Contains(t, names, "workflow:completed")
}
