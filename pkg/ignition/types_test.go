package ignition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultHealth(t *testing.T) {
	t.Run("any Failed signal is Unhealthy", func(t *testing.T) {
		r := &Result{Results: []SignalResult{{Status: StatusSucceeded}, {Status: StatusFailed}}}
		assert.Equal(t, HealthUnhealthy, r.Health())
	})

	t.Run("global TimedOut flag is Degraded", func(t *testing.T) {
		r := &Result{TimedOut: true, Results: []SignalResult{{Status: StatusSucceeded}}}
		assert.Equal(t, HealthDegraded, r.Health())
	})

	t.Run("a per-signal TimedOut status is Degraded", func(t *testing.T) {
		r := &Result{Results: []SignalResult{{Status: StatusTimedOut}}}
		assert.Equal(t, HealthDegraded, r.Health())
	})

	t.Run("Failed outranks TimedOut", func(t *testing.T) {
		r := &Result{TimedOut: true, Results: []SignalResult{{Status: StatusFailed}}}
		assert.Equal(t, HealthUnhealthy, r.Health())
	})

	t.Run("all succeeded is Healthy", func(t *testing.T) {
		r := &Result{Results: []SignalResult{{Status: StatusSucceeded}, {Status: StatusSucceeded}}}
		assert.Equal(t, HealthHealthy, r.Health())
	})

	t.Run("no signals at all is Healthy", func(t *testing.T) {
		r := &Result{}
		assert.Equal(t, HealthHealthy, r.Health())
	})
}
