package ignition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValidate(t *testing.T) {
	t.Run("rejects unknown execution mode", func(t *testing.T) {
		o := &Options{ExecutionMode: "Bogus"}
		require.Error(t, o.Validate())
	})

	t.Run("rejects negative global timeout", func(t *testing.T) {
		o := &Options{GlobalTimeout: -time.Second}
		require.Error(t, o.Validate())
	})

	t.Run("rejects negative max degree of parallelism", func(t *testing.T) {
		o := &Options{MaxDegreeOfParallelism: -1}
		require.Error(t, o.Validate())
	})

	t.Run("zero value is valid", func(t *testing.T) {
		o := &Options{}
		require.NoError(t, o.Validate())
	})
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, ModeParallel, o.ExecutionMode)
	assert.Equal(t, PolicyFailFast, o.Policy)
	assert.Equal(t, StageAllMustSucceed, o.StagePolicy.Kind)
	assert.NotNil(t, o.TimeoutStrategy)
	assert.NotNil(t, o.Metrics)
	assert.NotNil(t, o.Logger)
}

func TestOptionsWithDefaultsPreservesExplicitValues(t *testing.T) {
	custom := PolicyFunc(func(PolicyContext) bool { return true })
	o := Options{ExecutionMode: ModeSequential, CustomPolicy: custom}.withDefaults()
	assert.Equal(t, ModeSequential, o.ExecutionMode)
	assert.Empty(t, o.Policy, "a CustomPolicy must suppress the default named policy")
}

func TestDefaultTimeoutStrategy(t *testing.T) {
	d := 3 * time.Second
	s := NewSignal("x", noopBody, WithTimeout(d))
	opts := (&Options{CancelIndividualOnTimeout: true}).withDefaults()

	timeout, cancelImmediately := DefaultTimeoutStrategy{}.GetTimeout(s, &opts)
	require.NotNil(t, timeout)
	assert.Equal(t, d, *timeout)
	assert.True(t, cancelImmediately)
}
