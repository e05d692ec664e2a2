package recording

import "sort"

// BoundaryType names a notable instant in a Timeline.
type BoundaryType string

const (
	BoundaryIgnitionStart BoundaryType = "IgnitionStart"
	BoundaryIgnitionEnd   BoundaryType = "IgnitionEnd"
)

// Boundary marks a notable instant on the Timeline.
type Boundary struct {
	Type   BoundaryType `json:"type"`
	TimeMs int64        `json:"timeMs"`
}

// Event is one signal's visualization-ready entry on a Timeline.
type Event struct {
	SignalName         string   `json:"signalName"`
	Status             string   `json:"status"`
	StartMs            int64    `json:"startMs"`
	EndMs              int64    `json:"endMs"`
	DurationMs         int64    `json:"durationMs"`
	ConcurrentGroup    int      `json:"concurrentGroup"`
	FailedDependencies []string `json:"failedDependencies,omitempty"`
}

// Timeline is a reduction of a Recording suited for visualization
// (spec.md §4.11).
type Timeline struct {
	Events          []Event    `json:"events"`
	Boundaries      []Boundary `json:"boundaries"`
	Summary         Summary    `json:"summary"`
	TotalDurationMs int64      `json:"totalDurationMs"`
	TimedOut        bool       `json:"timedOut"`
	ExecutionMode   string     `json:"executionMode,omitempty"`
}

// NewTimeline derives a Timeline from a Recording, assigning
// concurrentGroup by scanning events in startMs order and grouping those
// whose intervals pairwise overlap.
func NewTimeline(r *Recording) *Timeline {
	events := make([]Event, len(r.Signals))
	for i, s := range r.Signals {
		events[i] = Event{
			SignalName:         s.SignalName,
			Status:             s.Status,
			StartMs:            s.StartMs,
			EndMs:              s.EndMs,
			DurationMs:         s.DurationMs,
			FailedDependencies: s.FailedDependencies,
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartMs < events[j].StartMs })
	assignConcurrentGroups(events)

	return &Timeline{
		Events:          events,
		Boundaries:      []Boundary{{Type: BoundaryIgnitionStart, TimeMs: 0}, {Type: BoundaryIgnitionEnd, TimeMs: r.TotalDurationMs}},
		Summary:         r.Summary,
		TotalDurationMs: r.TotalDurationMs,
		TimedOut:        r.TimedOut,
		ExecutionMode:   r.Configuration.ExecutionMode,
	}
}

// assignConcurrentGroups groups events (already sorted by StartMs) whose
// intervals pairwise overlap, tracking the earliest end among the running
// group's members: an event joins only if it starts before all of them end.
func assignConcurrentGroups(events []Event) {
	group := 0
	groupEnd := int64(-1)
	for i := range events {
		if events[i].StartMs >= groupEnd {
			group++
			groupEnd = events[i].EndMs
		} else if events[i].EndMs < groupEnd {
			groupEnd = events[i].EndMs
		}
		events[i].ConcurrentGroup = group
	}
}
