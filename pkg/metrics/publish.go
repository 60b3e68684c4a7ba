package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PublishMetrics records saga step latency, outcomes, compensation results
// and configuration lock contention.
type PublishMetrics struct {
	stepDuration   *prometheus.HistogramVec
	outcome        *prometheus.CounterVec
	rollback       *prometheus.CounterVec
	lockContention *prometheus.CounterVec
}

// NewPublishMetrics registers the publish metrics on the provided registerer.
func NewPublishMetrics(reg prometheus.Registerer) *PublishMetrics {
	if reg == nil {
		return &PublishMetrics{}
	}
	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "publish_step_duration_seconds",
		Help:    "Duration of publish saga steps in seconds, retries included.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"step"})
	outcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_outcome_total",
		Help: "Publish attempts by offer variant and resulting status.",
	}, []string{"variant", "status"})
	rollback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_rollback_total",
		Help: "Compensation runs by result.",
	}, []string{"result"})
	lockContention := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "config_lock_contention_total",
		Help: "Configuration lock acquisitions that found the lock held.",
	}, []string{"env"})
	reg.MustRegister(stepDuration, outcome, rollback, lockContention)
	return &PublishMetrics{
		stepDuration:   stepDuration,
		outcome:        outcome,
		rollback:       rollback,
		lockContention: lockContention,
	}
}

// ObserveStep records how long one saga step took.
func (m *PublishMetrics) ObserveStep(step string, duration time.Duration) {
	if m == nil || m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(normalizeLabel(step)).Observe(duration.Seconds())
}

// IncOutcome counts a finished publish attempt.
func (m *PublishMetrics) IncOutcome(variant, status string) {
	if m == nil || m.outcome == nil {
		return
	}
	m.outcome.WithLabelValues(normalizeLabel(variant), normalizeLabel(status)).Inc()
}

// IncRollback counts a compensation run; result is "ok" or "failed".
func (m *PublishMetrics) IncRollback(result string) {
	if m == nil || m.rollback == nil {
		return
	}
	m.rollback.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncLockContention counts a busy configuration lock.
func (m *PublishMetrics) IncLockContention(env string) {
	if m == nil || m.lockContention == nil {
		return
	}
	m.lockContention.WithLabelValues(normalizeLabel(env)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
