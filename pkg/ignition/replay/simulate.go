package replay

import (
	"github.com/linkflow-go/ignition/pkg/ignition/recording"
)

// ProjectedSignal is one entry in a what-if simulation's projected
// outcome. It mirrors recording.SignalRecord's shape but status and
// failedDependencies may have been rewritten by the simulation.
type ProjectedSignal struct {
	SignalName         string   `json:"signalName"`
	Status             string   `json:"status"`
	StartMs            int64    `json:"startMs"`
	EndMs              int64    `json:"endMs"`
	DurationMs         int64    `json:"durationMs"`
	FailedDependencies []string `json:"failedDependencies,omitempty"`
	Simulated          bool     `json:"simulated"`
}

// SimulateFailure projects what the recording's signal list would look
// like had signalName failed, without re-running anything: signalName
// itself is marked Failed, and every transitive dependent (by the
// recording's DependsOn edges) is re-classified as Skipped with
// failedDependencies populated from its own direct, now-doomed
// dependencies.
func SimulateFailure(r *recording.Recording, signalName string) []ProjectedSignal {
	return simulate(r, signalName, func(target *ProjectedSignal) {
		target.Status = "Failed"
		target.Simulated = true
	})
}

// SimulateEarlierTimeout projects the outcome had signalName been bound
// to thresholdMs instead of its recorded duration: if its actual
// duration exceeds the threshold, it's reclassified TimedOut and its
// dependents cascade to Skipped exactly as in SimulateFailure. If the
// signal would have finished within the threshold anyway, the recording
// is returned unchanged (as ProjectedSignal, with Simulated left false).
func SimulateEarlierTimeout(r *recording.Recording, signalName string, thresholdMs int64) []ProjectedSignal {
	rec := findSignal(r, signalName)
	if rec == nil || rec.DurationMs <= thresholdMs {
		return toProjected(r.Signals)
	}
	return simulate(r, signalName, func(target *ProjectedSignal) {
		target.Status = "TimedOut"
		target.DurationMs = thresholdMs
		target.EndMs = target.StartMs + thresholdMs
		target.Simulated = true
	})
}

func simulate(r *recording.Recording, signalName string, mutateTarget func(*ProjectedSignal)) []ProjectedSignal {
	projected := toProjected(r.Signals)
	index := make(map[string]int, len(projected))
	for i, p := range projected {
		index[p.SignalName] = i
	}

	targetIdx, ok := index[signalName]
	if !ok {
		return projected
	}
	mutateTarget(&projected[targetIdx])

	dependents := reverseDependencyIndex(r.Signals)
	doomed := map[string]bool{signalName: true}
	queue := []string{signalName}
	for len(queue) > 0 {
		cause := queue[0]
		queue = queue[1:]
		for _, dep := range dependents[cause] {
			if doomed[dep] {
				continue
			}
			doomed[dep] = true
			i := index[dep]
			projected[i].Status = "Skipped"
			projected[i].FailedDependencies = directDoomedDependencies(r, dep, doomed)
			projected[i].Simulated = true
			queue = append(queue, dep)
		}
	}

	return projected
}

func findSignal(r *recording.Recording, name string) *recording.SignalRecord {
	for i := range r.Signals {
		if r.Signals[i].SignalName == name {
			return &r.Signals[i]
		}
	}
	return nil
}

func toProjected(signals []recording.SignalRecord) []ProjectedSignal {
	out := make([]ProjectedSignal, len(signals))
	for i, s := range signals {
		out[i] = ProjectedSignal{
			SignalName:         s.SignalName,
			Status:             s.Status,
			StartMs:            s.StartMs,
			EndMs:              s.EndMs,
			DurationMs:         s.DurationMs,
			FailedDependencies: s.FailedDependencies,
		}
	}
	return out
}

// reverseDependencyIndex maps each signal to the signals that directly
// depend on it, inverting SignalRecord.DependsOn.
func reverseDependencyIndex(signals []recording.SignalRecord) map[string][]string {
	out := make(map[string][]string)
	for _, s := range signals {
		for _, parent := range s.DependsOn {
			out[parent] = append(out[parent], s.SignalName)
		}
	}
	return out
}

// directDoomedDependencies returns dep's own direct dependencies that
// are already marked doomed, matching the coordinator's cascade
// convention of recording only the immediate doomed predecessors.
func directDoomedDependencies(r *recording.Recording, dep string, doomed map[string]bool) []string {
	rec := findSignal(r, dep)
	if rec == nil {
		return nil
	}
	var out []string
	for _, parent := range rec.DependsOn {
		if doomed[parent] {
			out = append(out, parent)
		}
	}
	return out
}
