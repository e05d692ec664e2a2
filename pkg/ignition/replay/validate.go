// Package replay analyzes a recorded Recording after the fact: validating
// its internal consistency and projecting "what if" variations without
// re-running any signal (spec.md §4.11).
package replay

import (
	"fmt"

	"github.com/linkflow-go/ignition/pkg/ignition/recording"
)

// Level classifies the severity of a validation Issue.
type Level string

const (
	LevelInfo    Level = "Info"
	LevelWarning Level = "Warning"
	LevelError   Level = "Error"
)

// Issue is one structured finding from Validate.
type Issue struct {
	Level      Level  `json:"level"`
	SignalName string `json:"signalName,omitempty"`
	Message    string `json:"message"`
}

// Validate inspects a Recording for internal inconsistencies: negative
// durations, end-before-start, duration drift against endMs-startMs,
// dependency-order violations, missing configuration, and a count
// mismatch between Summary.TotalSignals and the actual signal list.
func Validate(r *recording.Recording) []Issue {
	var issues []Issue

	if r.Summary.TotalSignals != len(r.Signals) {
		issues = append(issues, Issue{
			Level:   LevelError,
			Message: fmt.Sprintf("summary.totalSignals=%d but recording carries %d signal(s)", r.Summary.TotalSignals, len(r.Signals)),
		})
	}

	if r.Configuration.ExecutionMode == "" {
		issues = append(issues, Issue{Level: LevelWarning, Message: "configuration.executionMode is missing"})
	}
	if r.Configuration.Policy == "" {
		issues = append(issues, Issue{Level: LevelWarning, Message: "configuration.policy is missing"})
	}

	byName := make(map[string]recording.SignalRecord, len(r.Signals))
	for _, s := range r.Signals {
		byName[s.SignalName] = s
	}

	for _, s := range r.Signals {
		if s.DurationMs < 0 {
			issues = append(issues, Issue{Level: LevelError, SignalName: s.SignalName, Message: "duration is negative"})
		}
		if s.EndMs < s.StartMs {
			issues = append(issues, Issue{Level: LevelError, SignalName: s.SignalName, Message: fmt.Sprintf("endMs (%d) precedes startMs (%d)", s.EndMs, s.StartMs)})
			continue
		}

		wallClock := s.EndMs - s.StartMs
		drift := wallClock - s.DurationMs
		if drift < 0 {
			drift = -drift
		}
		if drift > 1 {
			issues = append(issues, Issue{
				Level:      LevelWarning,
				SignalName: s.SignalName,
				Message:    fmt.Sprintf("durationMs (%d) drifts from endMs-startMs (%d) by %dms", s.DurationMs, wallClock, drift),
			})
		}

		for _, parentName := range s.DependsOn {
			parent, ok := byName[parentName]
			if !ok {
				issues = append(issues, Issue{
					Level:      LevelError,
					SignalName: s.SignalName,
					Message:    fmt.Sprintf("depends on %q which is not present in the recording", parentName),
				})
				continue
			}
			if s.StartMs < parent.EndMs {
				issues = append(issues, Issue{
					Level:      LevelError,
					SignalName: s.SignalName,
					Message:    fmt.Sprintf("started at %dms before dependency %q completed at %dms", s.StartMs, parentName, parent.EndMs),
				})
			}
		}
	}

	return issues
}
