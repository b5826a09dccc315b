package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"gorm.io/gorm"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonPartnerTimeout       = "partner_timeout"
	ReasonPartnerRejected      = "partner_rejected"
	ReasonPartnerUnavailable   = "partner_unavailable"
	ReasonIncompleteActivation = "incomplete_activation"
	ReasonIllegalTransition    = "illegal_transition"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonDB                   = "db"
	ReasonUnknown              = "unknown"
)

const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

const (
	LeaseOutcomeAcquired = "acquired"
	LeaseOutcomeHeld     = "held"
	LeaseOutcomeError    = "error"
)

// ReconcileMetrics captures reconcile job health and order lifecycle signals.
type ReconcileMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	ordersProcessed  *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec
	partnerErrors    *prometheus.CounterVec
	gateOutcomes     *prometheus.CounterVec
	jobLeases        *prometheus.CounterVec
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the singleton reconcile metrics registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

// ReconcileWithConfig returns the singleton registry using config labels.
func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// ResetReconcileMetricsForTest resets the singleton for tests.
func ResetReconcileMetricsForTest() {
	reconcileMetricsOnce = sync.Once{}
	reconcileMetrics = nil
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "simcore"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simcore_reconcile_job_runs_total",
		Help:        "Reconcile job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "simcore_reconcile_job_duration_seconds",
		Help:        "Reconcile job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simcore_reconcile_job_timeouts_total",
		Help:        "Reconcile jobs that hit their run deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simcore_reconcile_job_errors_total",
		Help:        "Per-order and per-batch reconcile errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	ordersProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simcore_reconcile_orders_processed_total",
		Help:        "Orders visited by reconcile jobs by outcome.",
		ConstLabels: constLabels,
	}, []string{"job", "outcome"})
	orderTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simcore_order_transition_total",
		Help:        "Committed order status transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	partnerErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simcore_partner_errors_total",
		Help:        "Partner call failures by partner and reason.",
		ConstLabels: constLabels,
	}, []string{"partner", "reason"})
	gateOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simcore_idempotency_gate_total",
		Help:        "Idempotency gate admissions by source and result.",
		ConstLabels: constLabels,
	}, []string{"source", "result"})
	jobLeases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "simcore_reconcile_job_lease_total",
		Help:        "Cross-instance job lease attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"job", "outcome"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		ordersProcessed,
		orderTransitions,
		partnerErrors,
		gateOutcomes,
		jobLeases,
	)

	return &ReconcileMetrics{
		jobRuns:          jobRuns,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
		ordersProcessed:  ordersProcessed,
		orderTransitions: orderTransitions,
		partnerErrors:    partnerErrors,
		gateOutcomes:     gateOutcomes,
		jobLeases:        jobLeases,
	}
}

func (m *ReconcileMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *ReconcileMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *ReconcileMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with classification.
func (m *ReconcileMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyReason(err)).Inc()
}

func (m *ReconcileMetrics) IncOrderProcessed(job, outcome string) {
	if m == nil {
		return
	}
	m.ordersProcessed.WithLabelValues(job, outcome).Inc()
}

func (m *ReconcileMetrics) IncOrderTransition(from, to string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

func (m *ReconcileMetrics) IncPartnerError(partner string, err error) {
	if m == nil || err == nil {
		return
	}
	m.partnerErrors.WithLabelValues(partner, ClassifyReason(err)).Inc()
}

func (m *ReconcileMetrics) IncGateOutcome(source, result string) {
	if m == nil {
		return
	}
	m.gateOutcomes.WithLabelValues(source, result).Inc()
}

func (m *ReconcileMetrics) IncJobLease(job, outcome string) {
	if m == nil {
		return
	}
	m.jobLeases.WithLabelValues(job, outcome).Inc()
}

// ClassifyReason maps errors to low-cardinality reasons for metrics and logs.
func ClassifyReason(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, orderdomain.ErrPartnerTimeout):
		return ReasonPartnerTimeout
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case errors.Is(err, orderdomain.ErrPartnerRejected):
		return ReasonPartnerRejected
	case errors.Is(err, orderdomain.ErrPartnerUnavailable):
		return ReasonPartnerUnavailable
	case errors.Is(err, orderdomain.ErrIncompleteActivation):
		return ReasonIncompleteActivation
	case errors.Is(err, orderdomain.ErrIllegalTransition):
		return ReasonIllegalTransition
	case hasPGCode(err, "55P03"):
		return ReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return ReasonUniqueViolation
	case isDBError(err):
		return ReasonDB
	default:
		return ReasonUnknown
	}
}

// IsRetryable reports whether the next scheduled pass may succeed where this
// one failed.
func IsRetryable(err error) bool {
	switch ClassifyReason(err) {
	case ReasonPartnerTimeout, ReasonPartnerUnavailable, ReasonDeadlineExceeded, ReasonIncompleteActivation,
		ReasonDBLockTimeout, ReasonSerializationFailure, ReasonDB:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
