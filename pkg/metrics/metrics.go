// Package metrics implements ignition.MetricsSink on top of
// prometheus/client_golang, the way the rest of this codebase exposes
// every subsystem's timing and status to a scrape endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/linkflow-go/ignition/pkg/ignition"
)

var (
	SignalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ignition_signal_duration_seconds",
			Help:    "Duration of a single readiness signal.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"signal", "status"},
	)

	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ignition_signals_total",
			Help: "Total number of readiness signals by terminal status.",
		},
		[]string{"signal", "status"},
	)

	IgnitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ignition_duration_seconds",
			Help:    "Duration of a whole ignition, from waitAll to terminal state.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"mode", "timed_out"},
	)
)

// PrometheusSink adapts the package-level collectors above to
// ignition.MetricsSink.
type PrometheusSink struct{}

// NewPrometheusSink builds an ignition.MetricsSink backed by the
// registered Prometheus collectors.
func NewPrometheusSink() PrometheusSink { return PrometheusSink{} }

func (PrometheusSink) ObserveSignal(name string, status ignition.SignalStatus, d time.Duration) {
	SignalDuration.WithLabelValues(name, string(status)).Observe(d.Seconds())
	SignalsTotal.WithLabelValues(name, string(status)).Inc()
}

func (PrometheusSink) ObserveIgnition(mode ignition.ExecutionMode, d time.Duration, timedOut bool) {
	timedOutLabel := "false"
	if timedOut {
		timedOutLabel = "true"
	}
	IgnitionDuration.WithLabelValues(string(mode), timedOutLabel).Observe(d.Seconds())
}
