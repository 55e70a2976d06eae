package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "renewal"

// Metrics records scheduler and execution activity.
type Metrics struct {
	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	dispatched   *prometheus.CounterVec
	executions   *prometheus.CounterVec
	inFlight     prometheus.Gauge
	open         prometheus.Gauge
	transitions  *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks run.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent evaluating and submitting steps per tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "steps_dispatched_total",
			Help:      "Steps claimed and submitted for execution.",
		}, []string{"kind"}),
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "step_executions_total",
			Help:      "Step execution results by kind and outcome.",
		}, []string{"kind", "outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "steps_in_flight",
			Help:      "Steps currently executing.",
		}),
		open: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "workflows",
			Name:      "open",
			Help:      "Non-terminal workflows seen by the last tick.",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "workflows",
			Name:      "transitions_total",
			Help:      "Workflow status transitions by target status.",
		}, []string{"status"}),
	}
}
