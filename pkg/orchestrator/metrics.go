package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes engine counters through Prometheus. A nil *Metrics is
// valid and records nothing, so embedding applications opt in with
// WithMetrics.
type Metrics struct {
	started      prometheus.Counter
	completed    prometheus.Counter
	failed       prometheus.Counter
	cancelled    prometheus.Counter
	active       prometheus.Gauge
	stepDuration *prometheus.HistogramVec
}

// NewMetrics registers the engine metrics with the given registerer.
// Passing nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		started: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadenza_workflows_started_total",
			Help: "Total number of workflow runs started.",
		}),
		completed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadenza_workflows_completed_total",
			Help: "Total number of workflow runs that completed successfully.",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadenza_workflows_failed_total",
			Help: "Total number of workflow runs that failed.",
		}),
		cancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadenza_workflows_cancelled_total",
			Help: "Total number of workflow runs cancelled before completion.",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cadenza_workflows_active",
			Help: "Number of workflow runs currently executing.",
		}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cadenza_step_duration_seconds",
			Help:    "Duration of individual step dispatches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"executor", "action"}),
	}
}

func (m *Metrics) workflowStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.active.Inc()
}

func (m *Metrics) workflowCompleted() {
	if m == nil {
		return
	}
	m.completed.Inc()
	m.active.Dec()
}

func (m *Metrics) workflowFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
	m.active.Dec()
}

func (m *Metrics) workflowCancelled() {
	if m == nil {
		return
	}
	m.cancelled.Inc()
	m.active.Dec()
}

func (m *Metrics) observeStep(executor, action string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(executor, action).Observe(d.Seconds())
}
