package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for workflow execution. All
// methods are safe for concurrent use by parallel-group workers.
type Metrics struct {
	stagesTotal      *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	retriesTotal     prometheus.Counter
	approvalsTotal   *prometheus.CounterVec
	cascadeSkips     prometheus.Counter
	workflowsTotal   *prometheus.CounterVec
	workflowDuration prometheus.Histogram
}

// NewMetrics registers the workflow metrics on the given registerer
// under the given namespace. A nil registerer uses the default
// Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		stagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Total number of stage outcomes by terminal status",
			},
			[]string{"status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Stage execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		retriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_retries_total",
				Help:      "Total number of stage retry attempts",
			},
		),
		approvalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_total",
				Help:      "Total number of approval decisions",
			},
			[]string{"decision"},
		),
		cascadeSkips: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cascade_skips_total",
				Help:      "Total number of stages skipped because a dependency failed",
			},
		),
		workflowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_total",
				Help:      "Total number of workflow runs by result",
			},
			[]string{"result"},
		),
		workflowDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Workflow run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
	}
}

// ObserveStage records a terminal stage outcome.
func (m *Metrics) ObserveStage(agentID string, status StageStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.stagesTotal.WithLabelValues(string(status)).Inc()
	if status == StatusCompleted || status == StatusFailed {
		m.stageDuration.WithLabelValues(agentID).Observe(d.Seconds())
	}
}

// ObserveRetry records one retry attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// ObserveApproval records an approval decision.
func (m *Metrics) ObserveApproval(approved bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if approved {
		decision = "granted"
	}
	m.approvalsTotal.WithLabelValues(decision).Inc()
}

// ObserveCascadeSkip records one stage skipped through cascade.
func (m *Metrics) ObserveCascadeSkip() {
	if m == nil {
		return
	}
	m.cascadeSkips.Inc()
}

// ObserveWorkflow records a finished workflow run.
func (m *Metrics) ObserveWorkflow(success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.workflowsTotal.WithLabelValues(result).Inc()
	m.workflowDuration.Observe(d.Seconds())
}
