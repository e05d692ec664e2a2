package ignition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsDependencyAwareWithoutGraph(t *testing.T) {
	_, err := New(WithOptions(Options{ExecutionMode: ModeDependencyAware}), WithSignal(NewSignal("a", noopBody)))
	require.ErrorIs(t, err, ErrNoGraph)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(WithOptions(Options{ExecutionMode: "Bogus"}))
	require.Error(t, err)
}

func TestCoordinatorZeroSignalsCompletesCleanly(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	result, err := c.WaitAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Equal(t, StateCompleted, c.State())
}

func TestCoordinatorStateProgression(t *testing.T) {
	c, err := New(WithOptions(Options{GlobalTimeout: time.Second}), WithSignal(NewSignal("a", noopBody)))
	require.NoError(t, err)
	assert.Equal(t, StateNotStarted, c.State())

	_, getErr := c.GetResult()
	require.Error(t, getErr, "GetResult before WaitAll must not block or succeed")

	_, err = c.WaitAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, c.State())

	result, err := c.GetResult()
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
}

func TestCoordinatorWaitAllSingleFlight(t *testing.T) {
	var invocations int
	var mu sync.Mutex
	sig := NewSignal("a", func(context.Context) error {
		mu.Lock()
		invocations++
		mu.Unlock()
		return nil
	})
	c, err := New(WithOptions(Options{GlobalTimeout: time.Second}), WithSignal(sig))
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.WaitAll(context.Background())
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, invocations, "the signal body runs exactly once regardless of concurrent WaitAll callers")
	for _, r := range results {
		assert.Same(t, results[0], r, "every caller observes the identical cached Result")
	}
}

func TestCoordinatorFailFastBuildsAggregateError(t *testing.T) {
	c, err := New(
		WithOptions(Options{Policy: PolicyFailFast, GlobalTimeout: time.Second}),
		WithSignal(NewSignal("a", func(context.Context) error { return errors.New("boom") })),
	)
	require.NoError(t, err)

	result, err := c.WaitAll(context.Background())
	require.Error(t, err)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, "a", agg.Failures[0].Name)
	assert.Equal(t, StateFailed, c.State())
	require.Len(t, result.Results, 1)
}

func TestCoordinatorGlobalTimeoutNonCancelling(t *testing.T) {
	blocked := make(chan struct{})
	defer close(blocked)
	slow := NewSignal("slow", func(ctx context.Context) error {
		<-blocked
		return nil
	})

	var timeoutFired bool
	c, err := New(
		WithOptions(Options{GlobalTimeout: 10 * time.Millisecond, CancelOnGlobalTimeout: false}),
		WithSignal(slow),
		OnGlobalTimeoutReached(func() { timeoutFired = true }),
	)
	require.NoError(t, err)

	result, err := c.WaitAll(context.Background())
	require.NoError(t, err)
	assert.True(t, timeoutFired)
	assert.True(t, result.TimedOut)
	assert.Equal(t, StateTimedOut, c.State())
}

func TestCoordinatorGlobalTimeoutCancelling(t *testing.T) {
	slow := NewSignal("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	c, err := New(
		WithOptions(Options{GlobalTimeout: 10 * time.Millisecond, CancelOnGlobalTimeout: true}),
		WithSignal(slow),
	)
	require.NoError(t, err)

	result, err := c.WaitAll(context.Background())
	require.Error(t, err, "the default FailFast policy denies on the TimedOut result")
	require.Len(t, result.Results, 1)
	assert.Equal(t, StatusTimedOut, result.Results[0].Status)
	assert.True(t, result.TimedOut)
}

func TestCoordinatorEventHandlerPanicIsRecovered(t *testing.T) {
	c, err := New(
		WithOptions(Options{GlobalTimeout: time.Second}),
		WithSignal(NewSignal("a", noopBody)),
		OnSignalCompleted(func(SignalResult) { panic("handler blew up") }),
	)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, err := c.WaitAll(context.Background())
		require.NoError(t, err)
	})
}

func TestCoordinatorLifecycleHookPanicIsRecovered(t *testing.T) {
	c, err := New(
		WithOptions(Options{LifecycleHooks: LifecycleHooks{
			OnBeforeIgnition: func() error { panic("before blew up") },
		}}),
		WithSignal(NewSignal("a", noopBody)),
	)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, err := c.WaitAll(context.Background())
		require.NoError(t, err)
	})
}

func TestDeriveStatePrecedence(t *testing.T) {
	t.Run("any Failed wins over TimedOut", func(t *testing.T) {
		r := &Result{Results: []SignalResult{{Status: StatusFailed}, {Status: StatusTimedOut}}}
		assert.Equal(t, StateFailed, deriveState(r, nil))
	})

	t.Run("TimedOut flag wins over Completed", func(t *testing.T) {
		r := &Result{TimedOut: true, Results: []SignalResult{{Status: StatusSucceeded}}}
		assert.Equal(t, StateTimedOut, deriveState(r, nil))
	})

	t.Run("per-signal TimedOut status wins over Completed", func(t *testing.T) {
		r := &Result{Results: []SignalResult{{Status: StatusTimedOut}}}
		assert.Equal(t, StateTimedOut, deriveState(r, nil))
	})

	t.Run("an error always means Failed", func(t *testing.T) {
		r := &Result{Results: []SignalResult{{Status: StatusSucceeded}}}
		assert.Equal(t, StateFailed, deriveState(r, errors.New("boom")))
	})

	t.Run("all succeeded means Completed", func(t *testing.T) {
		r := &Result{Results: []SignalResult{{Status: StatusSucceeded}}}
		assert.Equal(t, StateCompleted, deriveState(r, nil))
	})
}
