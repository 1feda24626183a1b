package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StoreFaultDeadlineExceeded     = "deadline_exceeded"
	StoreFaultDBLockTimeout        = "db_lock_timeout"
	StoreFaultSerializationFailure = "serialization_failure"
	StoreFaultUniqueViolation      = "unique_violation"
	StoreFaultConnection           = "connection"
	StoreFaultDB                   = "db"
	StoreFaultUnknown              = "unknown"
)

const (
	StageEntitlement = "entitlement"
	StageInflight    = "inflight"
	StageLookup      = "lookup"
	StageRecord      = "record"
	StageIncrement   = "increment"
)

// PostingMetrics captures posting pipeline latency and store health for SLOs.
type PostingMetrics struct {
	batchDuration  *prometheus.HistogramVec
	batchItems     prometheus.Histogram
	ledgerDuration *prometheus.HistogramVec
	inflightWait   prometheus.Histogram
	storeFaults    *prometheus.CounterVec
}

var (
	postingMetricsOnce sync.Once
	postingMetrics     *PostingMetrics
)

// Posting returns the singleton posting metrics registry.
func Posting() *PostingMetrics {
	return PostingWithConfig(Config{})
}

// PostingWithConfig returns the singleton posting metrics registry using config labels.
func PostingWithConfig(cfg Config) *PostingMetrics {
	postingMetricsOnce.Do(func() {
		postingMetrics = newPostingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return postingMetrics
}

func newPostingMetrics(registerer prometheus.Registerer, cfg Config) *PostingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "bookpost"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "bookpost_posting_batch_duration_seconds",
		Help:        "End-to-end posting batch latency by outcome.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	batchItems := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "bookpost_posting_batch_items",
		Help:        "Items per admitted posting batch.",
		Buckets:     []float64{1, 2, 5, 10, 25, 50, 100, 200},
		ConstLabels: constLabels,
	})
	ledgerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "bookpost_ledger_submit_duration_seconds",
		Help:        "External ledger submission latency by provider and outcome.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		ConstLabels: constLabels,
	}, []string{"provider", "outcome"})
	inflightWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "bookpost_posting_inflight_wait_seconds",
		Help:        "Time spent waiting on a concurrent submission of the same payload.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	storeFaults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "bookpost_posting_store_faults_total",
		Help:        "Infrastructure faults that failed a posting batch, by stage and reason.",
		ConstLabels: constLabels,
	}, []string{"stage", "reason"})

	registerer.MustRegister(batchDuration, batchItems, ledgerDuration, inflightWait, storeFaults)

	return &PostingMetrics{
		batchDuration:  batchDuration,
		batchItems:     batchItems,
		ledgerDuration: ledgerDuration,
		inflightWait:   inflightWait,
		storeFaults:    storeFaults,
	}
}

// ObserveBatch records batch latency and size.
func (m *PostingMetrics) ObserveBatch(outcome string, items int, duration time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if items > 0 {
		m.batchItems.Observe(float64(items))
	}
}

// ObserveLedgerSubmit records ledger latency in seconds.
func (m *PostingMetrics) ObserveLedgerSubmit(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ledgerDuration.WithLabelValues(provider, outcome).Observe(duration.Seconds())
}

// ObserveInflightWait records time blocked behind a concurrent identical submission.
func (m *PostingMetrics) ObserveInflightWait(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.inflightWait.Observe(duration.Seconds())
}

// IncStoreFault increments the store fault counter with classification.
func (m *PostingMetrics) IncStoreFault(stage string, err error) {
	if m == nil || err == nil {
		return
	}
	m.storeFaults.WithLabelValues(stage, ClassifyStoreFault(err)).Inc()
}

// ClassifyStoreFault maps store errors to low-cardinality reasons.
func ClassifyStoreFault(err error) string {
	if err == nil {
		return StoreFaultUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StoreFaultDeadlineExceeded
	}
	if isDBLockTimeout(err) {
		return StoreFaultDBLockTimeout
	}
	if isSerializationFailure(err) {
		return StoreFaultSerializationFailure
	}
	if isUniqueViolation(err) {
		return StoreFaultUniqueViolation
	}
	if isConnectionFailure(err) {
		return StoreFaultConnection
	}
	if isDBError(err) {
		return StoreFaultDB
	}
	return StoreFaultUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func isConnectionFailure(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	// class 08: connection exception
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
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
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
