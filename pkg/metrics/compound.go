package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CompoundMetrics provides observability for the compound operation
// engine.
//
// Implementations collect metrics about chained transactions, their
// outcomes, symlink/referral retries and forced reconnections. The
// interface is optional - when not provided to the engine, a no-op
// implementation is used with zero overhead.
type CompoundMetrics interface {
	// RecordOperation records a completed compound operation with its
	// kind name, duration, and outcome.
	//
	// Parameters:
	//   - op: Operation kind name (e.g., "QUERY_INFO", "RENAME")
	//   - duration: Time taken including the network round trip
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(op string, duration time.Duration, err error)

	// RecordRetry records a symlink-driven re-issue of a query.
	RecordRetry(op string)

	// RecordReconnectMark records the connection being marked for
	// forced reconnection after a deleted/renamed share status.
	RecordReconnectMark()

	// RecordCachedRootHit records a root query served entirely from the
	// cached directory handle's attribute snapshot, with no network
	// call.
	RecordCachedRootHit()
}

// compoundMetrics is the Prometheus implementation of CompoundMetrics.
type compoundMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	reconnectMarks    prometheus.Counter
	cachedRootHits    prometheus.Counter
}

// NewCompoundMetrics creates a new Prometheus-backed CompoundMetrics
// instance.
//
// Returns a no-op implementation if metrics are not enabled
// (InitRegistry not called).
func NewCompoundMetrics() CompoundMetrics {
	if !IsEnabled() {
		return NewNoopCompoundMetrics()
	}

	reg := GetRegistry()

	return &compoundMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosmb_compound_operations_total",
				Help: "Total number of compound operations by kind and outcome",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittosmb_compound_operation_duration_milliseconds",
				Help: "Duration of compound operations in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"operation"},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosmb_compound_retries_total",
				Help: "Total number of symlink-driven query retries",
			},
			[]string{"operation"},
		),
		reconnectMarks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittosmb_connection_reconnect_marks_total",
				Help: "Times the connection was marked for forced reconnection",
			},
		),
		cachedRootHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittosmb_cached_root_hits_total",
				Help: "Root queries served from the cached directory snapshot",
			},
		),
	}
}

func (m *compoundMetrics) RecordOperation(op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(float64(duration.Milliseconds()))
}

func (m *compoundMetrics) RecordRetry(op string) {
	m.retriesTotal.WithLabelValues(op).Inc()
}

func (m *compoundMetrics) RecordReconnectMark() {
	m.reconnectMarks.Inc()
}

func (m *compoundMetrics) RecordCachedRootHit() {
	m.cachedRootHits.Inc()
}

// ============================================================================
// No-op Implementation
// ============================================================================

// noopCompoundMetrics discards all measurements.
type noopCompoundMetrics struct{}

// NewNoopCompoundMetrics returns a CompoundMetrics that discards all
// measurements.
func NewNoopCompoundMetrics() CompoundMetrics {
	return noopCompoundMetrics{}
}

func (noopCompoundMetrics) RecordOperation(string, time.Duration, error) {}
func (noopCompoundMetrics) RecordRetry(string)                           {}
func (noopCompoundMetrics) RecordReconnectMark()                         {}
func (noopCompoundMetrics) RecordCachedRootHit()                         {}
