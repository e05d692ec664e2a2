// Package recording derives a deterministic, schema-versioned post-mortem
// from an ignition Result, suitable for JSON export and later replay
// analysis (spec.md §4.11).
package recording

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/linkflow-go/ignition/pkg/ignition"
)

// SchemaVersion is the stable wire-format version string.
const SchemaVersion = "1.0"

// Configuration is a snapshot of the options that governed the ignition
// this Recording describes.
type Configuration struct {
	ExecutionMode             string `json:"executionMode"`
	Policy                    string `json:"policy"`
	GlobalTimeoutMs           int64  `json:"globalTimeoutMs"`
	CancelOnGlobalTimeout     bool   `json:"cancelOnGlobalTimeout"`
	CancelIndividualOnTimeout bool   `json:"cancelIndividualOnTimeout"`
}

// SignalRecord is one signal's entry in the Recording's signal list.
type SignalRecord struct {
	SignalName         string   `json:"signalName"`
	Status             string   `json:"status"`
	StartMs            int64    `json:"startMs"`
	EndMs              int64    `json:"endMs"`
	DurationMs         int64    `json:"durationMs"`
	ExceptionType      string   `json:"exceptionType,omitempty"`
	ExceptionMessage   string   `json:"exceptionMessage,omitempty"`
	FailedDependencies []string `json:"failedDependencies,omitempty"`
	DependsOn          []string `json:"dependsOn,omitempty"`
}

// Summary aggregates counts and timing across every signal.
type Summary struct {
	TotalSignals   int     `json:"totalSignals"`
	SucceededCount int     `json:"succeededCount"`
	FailedCount    int     `json:"failedCount"`
	TimedOutCount  int     `json:"timedOutCount"`
	SkippedCount   int     `json:"skippedCount"`
	CancelledCount int     `json:"cancelledCount"`
	SlowestSignal  string  `json:"slowestSignal,omitempty"`
	FastestSignal  string  `json:"fastestSignal,omitempty"`
	MaxConcurrency int     `json:"maxConcurrency"`
	AvgDurationMs  float64 `json:"avgDurationMs"`
}

// Recording is the versioned, serializable post-mortem of one ignition.
type Recording struct {
	SchemaVersion   string            `json:"schemaVersion"`
	RecordingID     string            `json:"recordingId"`
	RecordedAt      time.Time         `json:"recordedAt"`
	TotalDurationMs int64             `json:"totalDurationMs"`
	TimedOut        bool              `json:"timedOut"`
	FinalState      string            `json:"finalState"`
	Configuration   Configuration     `json:"configuration"`
	Signals         []SignalRecord    `json:"signals"`
	Summary         Summary           `json:"summary"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Options controls how a Recording is derived from a Result, since the
// Result itself doesn't carry the config snapshot or final state.
type Options struct {
	FinalState    ignition.CoordinatorState
	Configuration Configuration
	Metadata      map[string]string
	// IgnitionStart anchors per-signal begin/end offsets (ms from
	// ignition start). Zero value anchors offsets at the earliest
	// StartedAt among the results, which is still internally consistent but not
	// comparable across independent recordings.
	IgnitionStart time.Time
	// Dependencies optionally carries each signal's direct dependency
	// names (from the Graph that governed a DependencyAware ignition),
	// so a replayer can check dependency-order violations. Absent for
	// modes that ignition without a Graph.
	Dependencies map[string][]string
}

// New derives a Recording from a materialized Result.
func New(result *ignition.Result, opts Options) *Recording {
	anchor := opts.IgnitionStart
	if anchor.IsZero() {
		anchor = earliestStart(result.Results)
	}

	signals := make([]SignalRecord, 0, len(result.Results))
	var total, succeeded, failed, timedOut, skipped, cancelled int
	var sumDurationMs int64
	var slowest, fastest SignalRecord
	haveSlowest, haveFastest := false, false

	for _, r := range result.Results {
		rec := SignalRecord{
			SignalName:         r.Name,
			Status:             string(r.Status),
			StartMs:            offsetMs(anchor, r.StartedAt),
			EndMs:              offsetMs(anchor, r.CompletedAt),
			DurationMs:         r.Duration.Milliseconds(),
			FailedDependencies: r.FailedDependencies,
			DependsOn:          opts.Dependencies[r.Name],
		}
		if r.Exception != nil {
			rec.ExceptionType = fmt.Sprintf("%T", r.Exception)
			rec.ExceptionMessage = r.Exception.Error()
		}
		signals = append(signals, rec)

		total++
		switch r.Status {
		case ignition.StatusSucceeded:
			succeeded++
		case ignition.StatusFailed:
			failed++
		case ignition.StatusTimedOut:
			timedOut++
		case ignition.StatusSkipped:
			skipped++
		case ignition.StatusCancelled:
			cancelled++
		}
		sumDurationMs += rec.DurationMs

		if !haveSlowest || rec.DurationMs > slowest.DurationMs {
			slowest = rec
			haveSlowest = true
		}
		if !haveFastest || rec.DurationMs < fastest.DurationMs {
			fastest = rec
			haveFastest = true
		}
	}

	summary := Summary{
		TotalSignals:   total,
		SucceededCount: succeeded,
		FailedCount:    failed,
		TimedOutCount:  timedOut,
		SkippedCount:   skipped,
		CancelledCount: cancelled,
		MaxConcurrency: maxConcurrency(signals),
	}
	if haveSlowest {
		summary.SlowestSignal = slowest.SignalName
	}
	if haveFastest {
		summary.FastestSignal = fastest.SignalName
	}
	if total > 0 {
		summary.AvgDurationMs = float64(sumDurationMs) / float64(total)
	}

	return &Recording{
		SchemaVersion:   SchemaVersion,
		RecordingID:     uuid.NewString(),
		RecordedAt:      time.Now().UTC(),
		TotalDurationMs: result.TotalDuration.Milliseconds(),
		TimedOut:        result.TimedOut,
		FinalState:      string(opts.FinalState),
		Configuration:   opts.Configuration,
		Signals:         signals,
		Summary:         summary,
		Metadata:        opts.Metadata,
	}
}

func earliestStart(results []ignition.SignalResult) time.Time {
	var earliest time.Time
	for _, r := range results {
		if r.StartedAt.IsZero() {
			continue
		}
		if earliest.IsZero() || r.StartedAt.Before(earliest) {
			earliest = r.StartedAt
		}
	}
	return earliest
}

func offsetMs(anchor, t time.Time) int64 {
	if t.IsZero() || anchor.IsZero() {
		return 0
	}
	return t.Sub(anchor).Milliseconds()
}

// maxConcurrency counts the largest number of signals whose [start,end]
// intervals pairwise overlap at any instant, via a sweep over start/end
// boundary events.
func maxConcurrency(signals []SignalRecord) int {
	type boundary struct {
		t    int64
		kind int // -1 end, +1 start
	}
	var bounds []boundary
	for _, s := range signals {
		bounds = append(bounds, boundary{t: s.StartMs, kind: 1}, boundary{t: s.EndMs, kind: -1})
	}
	// Process ends before starts at equal timestamps so a signal that
	// finishes exactly when another begins doesn't count as overlapping.
	sort.Slice(bounds, func(i, j int) bool {
		if bounds[i].t != bounds[j].t {
			return bounds[i].t < bounds[j].t
		}
		return bounds[i].kind < bounds[j].kind
	})
	current, max := 0, 0
	for _, b := range bounds {
		current += b.kind
		if current > max {
			max = current
		}
	}
	return max
}

// ToJSON serializes the Recording to its stable wire format.
func (r *Recording) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a Recording, tolerating and discarding unknown fields
// for forward compatibility. Returns nil (no error) for malformed input,
// matching spec.md §4.11's "returns nothing for invalid input".
func FromJSON(data []byte) *Recording {
	var r Recording
	if err := json.Unmarshal(data, &r); err != nil {
		return nil
	}
	if r.SchemaVersion == "" {
		return nil
	}
	return &r
}
