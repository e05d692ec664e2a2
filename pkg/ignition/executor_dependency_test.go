package ignition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDependencyContext(t *testing.T, opts *Options, g *Graph) *ignitionContext {
	t.Helper()
	scope, err := NewRootScope(context.Background(), "test")
	require.NoError(t, err)
	t.Cleanup(scope.Release)

	resolved := opts.withDefaults()
	return &ignitionContext{
		signals:           g.Signals(),
		graph:             g,
		opts:              &resolved,
		scope:             scope,
		start:             time.Now(),
		onSignalStarted:   func(string) {},
		onSignalCompleted: func(SignalResult) {},
	}
}

func TestRunDependencyAwareDiamondCascade(t *testing.T) {
	root := NewSignal("root", func(context.Context) error { return errors.New("boom") })
	left := NewSignal("left", noopBody)
	right := NewSignal("right", noopBody)
	sink := NewSignal("sink", noopBody)

	g, err := NewGraphBuilder().
		AddSignal(root).AddSignal(left).AddSignal(right).AddSignal(sink).
		DependsOn(left, root).
		DependsOn(right, root).
		DependsOn(sink, left, right).
		Build()
	require.NoError(t, err)

	ic := newTestDependencyContext(t, &Options{Policy: PolicyBestEffort}, g)
	outcome := runDependencyAware(ic)

	byName := map[string]SignalResult{}
	for _, r := range outcome.result.Results {
		byName[r.Name] = r
	}
	require.Len(t, byName, 4)
	assert.Equal(t, StatusFailed, byName["root"].Status)
	assert.Equal(t, StatusSkipped, byName["left"].Status)
	assert.Equal(t, StatusSkipped, byName["right"].Status)
	assert.Equal(t, StatusSkipped, byName["sink"].Status)
	assert.Equal(t, []string{"root"}, byName["left"].FailedDependencies)
	assert.Equal(t, []string{"root"}, byName["right"].FailedDependencies)
	assert.ElementsMatch(t, []string{"left", "right"}, byName["sink"].FailedDependencies,
		"sink records only its own direct doomed parents, not the transitive root")
}

func TestRunDependencyAwareChainedFailedDependencies(t *testing.T) {
	s1 := NewSignal("s1", func(context.Context) error { return errors.New("boom") })
	s2 := NewSignal("s2", noopBody)
	s3 := NewSignal("s3", noopBody)

	g, err := NewGraphBuilder().
		AddSignal(s1).AddSignal(s2).AddSignal(s3).
		DependsOn(s2, s1).
		DependsOn(s3, s2).
		Build()
	require.NoError(t, err)

	ic := newTestDependencyContext(t, &Options{Policy: PolicyBestEffort}, g)
	outcome := runDependencyAware(ic)

	byName := map[string]SignalResult{}
	for _, r := range outcome.result.Results {
		byName[r.Name] = r
	}
	assert.Equal(t, []string{"s1"}, byName["s2"].FailedDependencies)
	assert.Equal(t, []string{"s2"}, byName["s3"].FailedDependencies,
		"s3 names s2 as its doomed parent, not the original s1 failure")
}

func TestRunDependencyAwareCancelDependentsOnFailure(t *testing.T) {
	root := NewSignal("root", func(context.Context) error { return errors.New("boom") })
	dep := NewSignal("dep", noopBody)

	g, err := NewGraphBuilder().AddSignal(root).AddSignal(dep).DependsOn(dep, root).Build()
	require.NoError(t, err)

	ic := newTestDependencyContext(t, &Options{Policy: PolicyBestEffort, CancelDependentsOnFailure: true}, g)
	outcome := runDependencyAware(ic)

	byName := map[string]SignalResult{}
	for _, r := range outcome.result.Results {
		byName[r.Name] = r
	}
	assert.Equal(t, StatusCancelled, byName["dep"].Status)
	assert.Equal(t, ReasonDependencyFailed, byName["dep"].CancellationReason)
	assert.Equal(t, "root", byName["dep"].CancelledBySignal)
}

func TestRunDependencyAwareFailFastDeniesRemaining(t *testing.T) {
	a := NewSignal("a", func(context.Context) error { return errors.New("boom") })
	b := NewSignal("b", noopBody)

	g, err := NewGraphBuilder().AddSignal(a).AddSignal(b).Build()
	require.NoError(t, err)

	ic := newTestDependencyContext(t, &Options{Policy: PolicyFailFast}, g)
	outcome := runDependencyAware(ic)

	assert.True(t, outcome.policyDenied)
	assert.Equal(t, "a", outcome.deniedBy)
}
