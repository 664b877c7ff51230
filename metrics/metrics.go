// Package metrics holds the Prometheus instruments for ledger operations and
// the reconciliation scheduler. Every recorder is nil-safe so components can
// run without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "till"

// LedgerMetrics implements ledger.Observer.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	attempts   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	repairs    prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on reg. A nil reg returns a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by terminal outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Time from request to terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_attempts",
			Help:      "Optimistic attempts used per operation.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{"op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_version_conflicts_total",
			Help:      "Compare-and-set conflicts that triggered a retry.",
		}, []string{"op"}),
		repairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_balance_repairs_total",
			Help:      "Cached balances rewritten from the entry log.",
		}),
	}
	reg.MustRegister(m.operations, m.duration, m.attempts, m.retries, m.repairs)
	return m
}

func (m *LedgerMetrics) ObserveOperation(op, outcome string, attempts int, d time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	op = normalizeLabel(op)
	m.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
	if attempts > 0 {
		m.attempts.WithLabelValues(op).Observe(float64(attempts))
	}
}

func (m *LedgerMetrics) ObserveRetry(op string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *LedgerMetrics) ObserveRepair() {
	if m == nil || m.repairs == nil {
		return
	}
	m.repairs.Inc()
}

// SchedulerMetrics records reconciliation sweeps.
type SchedulerMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	repaired *prometheus.CounterVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	m := &SchedulerMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_success_total",
			Help:      "Successful scheduled job runs.",
		}, []string{"job"}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failure_total",
			Help:      "Failed scheduled job runs.",
		}, []string{"job"}),
		repaired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_channels_repaired_total",
			Help:      "Channels whose cached balance a job repaired.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.success, m.failure, m.repaired)
	return m
}

func (m *SchedulerMetrics) ObserveRun(job string, d time.Duration, repaired int, err error) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(d.Seconds())
	if repaired > 0 {
		m.repaired.WithLabelValues(job).Add(float64(repaired))
	}
	if err != nil {
		m.failure.WithLabelValues(job).Inc()
		return
	}
	m.success.WithLabelValues(job).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
