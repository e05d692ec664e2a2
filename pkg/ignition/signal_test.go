package ignition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalValidate(t *testing.T) {
	t.Run("rejects empty name", func(t *testing.T) {
		s := NewSignal("", func(context.Context) error { return nil })
		require.Error(t, s.validate())
	})

	t.Run("rejects nil body", func(t *testing.T) {
		s := &Signal{Name: "x"}
		require.Error(t, s.validate())
	})

	t.Run("accepts a well-formed signal", func(t *testing.T) {
		s := NewSignal("x", func(context.Context) error { return nil })
		require.NoError(t, s.validate())
	})

	t.Run("rejects a negative timeout", func(t *testing.T) {
		s := NewSignal("x", func(context.Context) error { return nil }, WithTimeout(-time.Second))
		require.Error(t, s.validate())
	})

	t.Run("accepts a zero timeout", func(t *testing.T) {
		s := NewSignal("x", func(context.Context) error { return nil }, WithTimeout(0))
		require.NoError(t, s.validate())
	})
}

func TestSignalIdempotentExecution(t *testing.T) {
	var calls int
	s := NewSignal("once", func(context.Context) error {
		calls++
		return nil
	})

	scope, err := NewRootScope(context.Background(), "root")
	require.NoError(t, err)
	defer scope.Release()

	s.ensureStarted(scope.Context())
	s.ensureStarted(scope.Context())
	require.NoError(t, s.Wait(context.Background()))
	require.NoError(t, s.Wait(context.Background()))

	assert.Equal(t, 1, calls, "body must run at most once across all callers")
}

func TestSignalWaitObservesSameOutcome(t *testing.T) {
	wantErr := errors.New("boom")
	s := NewSignal("fails", func(context.Context) error { return wantErr })

	scope, err := NewRootScope(context.Background(), "root")
	require.NoError(t, err)
	defer scope.Release()

	s.ensureStarted(scope.Context())
	err1 := s.Wait(context.Background())
	err2 := s.Wait(context.Background())
	assert.Equal(t, wantErr, err1)
	assert.Equal(t, wantErr, err2)
}

func TestSignalPanicRecovery(t *testing.T) {
	s := NewSignal("panics", func(context.Context) error {
		panic("boom")
	})

	scope, err := NewRootScope(context.Background(), "root")
	require.NoError(t, err)
	defer scope.Release()

	s.ensureStarted(scope.Context())
	err = s.Wait(context.Background())
	require.Error(t, err)

	var pe panicError
	require.ErrorAs(t, err, &pe)
}

func TestSignalFactoryMaterialize(t *testing.T) {
	t.Run("applies factory name/timeout/stage when signal omits them", func(t *testing.T) {
		d := 5 * time.Second
		f := NewSignalFactory("from-factory", func(ctx FactoryContext) (*Signal, error) {
			return NewSignal("", func(context.Context) error { return nil }), nil
		}, func(f *SignalFactory) {
			f.Timeout = &d
			f.Stage = 2
		})

		s, err := f.materialize(nil)
		require.NoError(t, err)
		assert.Equal(t, "from-factory", s.Name)
		require.NotNil(t, s.Timeout)
		assert.Equal(t, d, *s.Timeout)
		assert.Equal(t, 2, s.Stage)
	})

	t.Run("preserves a signal's own name/timeout/stage over the factory's", func(t *testing.T) {
		d := 5 * time.Second
		own := 1 * time.Second
		f := NewSignalFactory("from-factory", func(ctx FactoryContext) (*Signal, error) {
			return NewSignal("own-name", func(context.Context) error { return nil }, WithTimeout(own), WithStage(9)), nil
		}, func(f *SignalFactory) {
			f.Timeout = &d
			f.Stage = 2
		})

		s, err := f.materialize(nil)
		require.NoError(t, err)
		assert.Equal(t, "own-name", s.Name)
		assert.Equal(t, own, *s.Timeout)
		assert.Equal(t, 9, s.Stage)
	})
}
