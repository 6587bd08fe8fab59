package syncqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the queue. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	enqueued        *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	queueLag        *prometheus.HistogramVec
	reclaimed       prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// It panics if registration fails, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncqueue_operations_enqueued_total",
				Help: "Total number of newly registered operations.",
			},
			[]string{"operation_type"},
		),
		duplicates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncqueue_duplicate_submissions_total",
				Help: "Total number of submissions answered from the idempotency ledger.",
			},
			[]string{"operation_type"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncqueue_idempotency_conflicts_total",
				Help: "Total number of reused idempotency keys with a different payload.",
			},
			[]string{"operation_type"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncqueue_attempts_total",
				Help: "Total number of handler attempts by outcome and resulting status.",
			},
			[]string{"operation_type", "outcome", "status"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "syncqueue_handler_duration_seconds",
				Help:    "Time spent in a single handler attempt (seconds).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation_type"},
		),
		queueLag: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "syncqueue_queue_lag_seconds",
				Help:    "Lag between operation creation and the start of an attempt (seconds).",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"operation_type"},
		),
		reclaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "syncqueue_operations_reclaimed_total",
				Help: "Total number of abandoned operations reclaimed by the liveness sweep.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.enqueued,
			m.duplicates,
			m.conflicts,
			m.outcomes,
			m.handlerDuration,
			m.queueLag,
			m.reclaimed,
		)
	}
	return m
}

func (m *Metrics) incEnqueued(t OperationType) {
	if m != nil {
		m.enqueued.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) incDuplicate(t OperationType) {
	if m != nil {
		m.duplicates.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) incConflict(t OperationType) {
	if m != nil {
		m.conflicts.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) observeAttempt(op *Operation, res Result, to Status, d time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(op.Type), res.Outcome.String(), string(to)).Inc()
	m.handlerDuration.WithLabelValues(string(op.Type)).Observe(d.Seconds())
}

func (m *Metrics) observeLag(op *Operation, startedAt time.Time) {
	if m != nil {
		m.queueLag.WithLabelValues(string(op.Type)).Observe(max(startedAt.Sub(op.CreatedAt).Seconds(), 0))
	}
}

func (m *Metrics) incReclaimed() {
	if m != nil {
		m.reclaimed.Inc()
	}
}
