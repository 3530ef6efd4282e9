package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics records royalty calculation outcomes.
type RunMetrics struct {
	duration   *prometheus.HistogramVec
	statements prometheus.Counter
	failures   *prometheus.CounterVec
	drift      prometheus.Histogram
}

// NewRunMetrics registers the run metrics on the provided registerer.
func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	if reg == nil {
		return &RunMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "royalty_run_duration_seconds",
		Help:    "Duration of royalty run calculations in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"outcome"})
	statements := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "royalty_statements_generated_total",
		Help: "Statements generated across all runs.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "royalty_run_failures_total",
		Help: "Failed royalty run calculations by reason.",
	}, []string{"reason"})
	drift := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "royalty_rounding_drift_cents",
		Help:    "Absolute rounding drift per run in cents.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
	})
	reg.MustRegister(duration, statements, failures, drift)
	return &RunMetrics{
		duration:   duration,
		statements: statements,
		failures:   failures,
		drift:      drift,
	}
}

// ObserveCalculation records the duration of a calculation with its outcome label.
func (m *RunMetrics) ObserveCalculation(outcome string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// AddStatements counts statements generated by a run.
func (m *RunMetrics) AddStatements(count int) {
	if m == nil || m.statements == nil || count <= 0 {
		return
	}
	m.statements.Add(float64(count))
}

// IncFailure counts a failed calculation by reason.
func (m *RunMetrics) IncFailure(reason string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveRoundingDrift records the absolute reconciliation drift of a run.
func (m *RunMetrics) ObserveRoundingDrift(cents float64) {
	if m == nil || m.drift == nil {
		return
	}
	if cents < 0 {
		cents = -cents
	}
	m.drift.Observe(cents)
}
