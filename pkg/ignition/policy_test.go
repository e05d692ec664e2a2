package ignition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePolicy(t *testing.T) {
	t.Run("custom policy takes precedence", func(t *testing.T) {
		custom := PolicyFunc(func(PolicyContext) bool { return false })
		opts := &Options{Policy: PolicyBestEffort, CustomPolicy: custom}
		p := resolvePolicy(opts)
		assert.False(t, p.ShouldContinue(PolicyContext{}))
	})

	t.Run("FailFast stops on first non-success", func(t *testing.T) {
		p := resolvePolicy(&Options{Policy: PolicyFailFast})
		assert.True(t, p.ShouldContinue(PolicyContext{SignalResult: SignalResult{Status: StatusSucceeded}}))
		assert.False(t, p.ShouldContinue(PolicyContext{SignalResult: SignalResult{Status: StatusFailed}}))
		assert.False(t, p.ShouldContinue(PolicyContext{SignalResult: SignalResult{Status: StatusTimedOut}}))
	})

	t.Run("BestEffort always continues", func(t *testing.T) {
		p := resolvePolicy(&Options{Policy: PolicyBestEffort})
		assert.True(t, p.ShouldContinue(PolicyContext{SignalResult: SignalResult{Status: StatusFailed}}))
	})

	t.Run("ContinueOnTimeout tolerates timeouts but not failures", func(t *testing.T) {
		p := resolvePolicy(&Options{Policy: PolicyContinueOnTimeout})
		assert.True(t, p.ShouldContinue(PolicyContext{SignalResult: SignalResult{Status: StatusTimedOut}}))
		assert.False(t, p.ShouldContinue(PolicyContext{SignalResult: SignalResult{Status: StatusFailed}}))
	})

	t.Run("empty policy kind defaults to FailFast", func(t *testing.T) {
		p := resolvePolicy(&Options{})
		assert.False(t, p.ShouldContinue(PolicyContext{SignalResult: SignalResult{Status: StatusFailed}}))
	})
}

func TestStagePolicyValidate(t *testing.T) {
	t.Run("rejects out-of-range early promotion threshold", func(t *testing.T) {
		p := StagePolicy{Kind: StageEarlyPromotion, EarlyPromotionThreshold: 1.5}
		assert.Error(t, p.validate())
	})

	t.Run("accepts a valid threshold", func(t *testing.T) {
		p := StagePolicy{Kind: StageEarlyPromotion, EarlyPromotionThreshold: 0.5}
		assert.NoError(t, p.validate())
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		p := StagePolicy{Kind: "Bogus"}
		assert.Error(t, p.validate())
	})
}
