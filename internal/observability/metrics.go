package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trade store.
type Metrics struct {
	// --- Ingestion ---
	IngestAccepted *prometheus.CounterVec // change_type: CREATE / UPDATE
	IngestRejected *prometheus.CounterVec // reason: VERSION_TOO_LOW / MATURITY_PAST / MALFORMED
	IngestFailures *prometheus.CounterVec // stage: sequence / ledger
	IngestDuration prometheus.Histogram
	UpsertDuration prometheus.Histogram
	IngestSequence prometheus.Gauge

	// --- Audit trail ---
	AuditRecordsWritten *prometheus.CounterVec // change_type
	AuditWriteFailures  prometheus.Counter

	// --- Expiry sweeper ---
	SweepRuns     prometheus.Counter
	SweepErrors   prometheus.Counter
	SweepExpired  prometheus.Counter
	SweepDuration prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	durationBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	return &Metrics{
		IngestAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_ingest_accepted_total",
			Help: "Trade updates persisted to the ledger",
		}, []string{"change_type"}),

		IngestRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_ingest_rejected_total",
			Help: "Trade updates rejected before any write",
		}, []string{"reason"}),

		IngestFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_ingest_failures_total",
			Help: "Ingestion attempts aborted by a store or sequencer error",
		}, []string{"stage"}),

		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trade_ingest_duration_seconds",
			Help:    "End-to-end duration of one ingestion attempt",
			Buckets: durationBuckets,
		}),

		UpsertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trade_ledger_upsert_duration_seconds",
			Help:    "Duration of the atomic conditional upsert",
			Buckets: durationBuckets,
		}),

		IngestSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trade_ingest_sequence",
			Help: "Most recently assigned ingest sequence number",
		}),

		AuditRecordsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_audit_records_written_total",
			Help: "Change records appended to the audit store",
		}, []string{"change_type"}),

		AuditWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trade_audit_write_failures_total",
			Help: "Audit appends that failed and were dropped (best-effort path)",
		}),

		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trade_expiry_sweep_runs_total",
			Help: "Expiry sweeper executions",
		}),

		SweepErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trade_expiry_sweep_errors_total",
			Help: "Expiry sweeper executions that errored",
		}),

		SweepExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trade_expiry_trades_expired_total",
			Help: "Trades transitioned ACTIVE to EXPIRED by the sweeper",
		}),

		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trade_expiry_sweep_duration_seconds",
			Help:    "Duration of one sweep run",
			Buckets: durationBuckets,
		}),
	}
}
