package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-go/ignition/pkg/ignition/recording"
)

func diamondRecording() *recording.Recording {
	return &recording.Recording{
		Signals: []recording.SignalRecord{
			{SignalName: "root", Status: "Succeeded", StartMs: 0, EndMs: 10, DurationMs: 10},
			{SignalName: "left", Status: "Succeeded", StartMs: 10, EndMs: 20, DurationMs: 10, DependsOn: []string{"root"}},
			{SignalName: "right", Status: "Succeeded", StartMs: 10, EndMs: 20, DurationMs: 10, DependsOn: []string{"root"}},
			{SignalName: "sink", Status: "Succeeded", StartMs: 20, EndMs: 30, DurationMs: 10, DependsOn: []string{"left", "right"}},
		},
	}
}

func TestSimulateFailureCascadesToDependents(t *testing.T) {
	r := diamondRecording()
	projected := SimulateFailure(r, "root")

	byName := map[string]ProjectedSignal{}
	for _, p := range projected {
		byName[p.SignalName] = p
	}
	assert.Equal(t, "Failed", byName["root"].Status)
	assert.True(t, byName["root"].Simulated)
	assert.Equal(t, "Skipped", byName["left"].Status)
	assert.Equal(t, "Skipped", byName["right"].Status)
	assert.Equal(t, "Skipped", byName["sink"].Status)
	assert.ElementsMatch(t, []string{"left", "right"}, byName["sink"].FailedDependencies)
	assert.True(t, byName["sink"].Simulated)
}

func TestSimulateFailureOfUnknownSignalIsNoop(t *testing.T) {
	r := diamondRecording()
	projected := SimulateFailure(r, "nonexistent")
	for _, p := range projected {
		assert.False(t, p.Simulated)
	}
}

func TestSimulateEarlierTimeoutBelowThresholdIsUnchanged(t *testing.T) {
	r := diamondRecording()
	projected := SimulateEarlierTimeout(r, "root", 100)
	for _, p := range projected {
		assert.False(t, p.Simulated)
	}
}

func TestSimulateEarlierTimeoutAboveThresholdTimesOutAndCascades(t *testing.T) {
	r := diamondRecording()
	projected := SimulateEarlierTimeout(r, "root", 5)

	byName := map[string]ProjectedSignal{}
	for _, p := range projected {
		byName[p.SignalName] = p
	}
	require.Equal(t, "TimedOut", byName["root"].Status)
	assert.Equal(t, int64(5), byName["root"].DurationMs)
	assert.Equal(t, int64(5), byName["root"].EndMs)
	assert.Equal(t, "Skipped", byName["left"].Status)
	assert.Equal(t, "Skipped", byName["sink"].Status)
}
