package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-go/ignition/pkg/ignition"
)

func TestNewDerivesSummaryAndOffsets(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	result := &ignition.Result{
		TotalDuration: 200 * time.Millisecond,
		Results: []ignition.SignalResult{
			{
				Name:        "a",
				Status:      ignition.StatusSucceeded,
				StartedAt:   base,
				CompletedAt: base.Add(50 * time.Millisecond),
				Duration:    50 * time.Millisecond,
			},
			{
				Name:        "b",
				Status:      ignition.StatusFailed,
				StartedAt:   base.Add(10 * time.Millisecond),
				CompletedAt: base.Add(200 * time.Millisecond),
				Duration:    190 * time.Millisecond,
				Exception:   assertableError{},
			},
		},
	}

	rec := New(result, Options{
		FinalState:    ignition.StateFailed,
		Configuration: Configuration{ExecutionMode: "Parallel", Policy: "FailFast"},
		Dependencies:  map[string][]string{"b": {"a"}},
	})

	require.Equal(t, SchemaVersion, rec.SchemaVersion)
	require.NotEmpty(t, rec.RecordingID)
	require.Len(t, rec.Signals, 2)

	byName := map[string]SignalRecord{}
	for _, s := range rec.Signals {
		byName[s.SignalName] = s
	}
	assert.Equal(t, int64(0), byName["a"].StartMs)
	assert.Equal(t, int64(10), byName["b"].StartMs)
	assert.Equal(t, []string{"a"}, byName["b"].DependsOn)
	assert.Equal(t, "boom", byName["b"].ExceptionMessage)
	assert.NotEmpty(t, byName["b"].ExceptionType)

	assert.Equal(t, 2, rec.Summary.TotalSignals)
	assert.Equal(t, 1, rec.Summary.SucceededCount)
	assert.Equal(t, 1, rec.Summary.FailedCount)
	assert.Equal(t, "b", rec.Summary.SlowestSignal)
	assert.Equal(t, "a", rec.Summary.FastestSignal)
	assert.Equal(t, 2, rec.Summary.MaxConcurrency, "a and b overlap between 10ms and 50ms")
}

func TestRecordingJSONRoundTrip(t *testing.T) {
	result := &ignition.Result{
		Results: []ignition.SignalResult{{Name: "a", Status: ignition.StatusSucceeded}},
	}
	rec := New(result, Options{FinalState: ignition.StateCompleted})

	data, err := rec.ToJSON()
	require.NoError(t, err)

	back := FromJSON(data)
	require.NotNil(t, back)
	assert.Equal(t, rec.RecordingID, back.RecordingID)
	assert.Equal(t, rec.SchemaVersion, back.SchemaVersion)
}

func TestFromJSONRejectsMalformedOrUnversionedInput(t *testing.T) {
	assert.Nil(t, FromJSON([]byte("not json")))
	assert.Nil(t, FromJSON([]byte(`{"recordingId":"x"}`)))
}

type assertableError struct{}

func (assertableError) Error() string { return "boom" }
