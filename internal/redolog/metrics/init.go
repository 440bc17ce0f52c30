package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initWriterMetrics() {
	r.AppendsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "redolog_appends_total",
			Help: "Total number of entries appended to the redo log",
		},
		[]string{"kind"}, // op, start, commit, abort
	)

	r.BytesWritten = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_bytes_written_total",
			Help: "Total framed bytes appended to redo log segments",
		},
	)

	r.FsyncDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "redolog_fsync_duration_seconds",
			Help:    "Duration of segment fsync calls in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	r.RotationsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_segment_rotations_total",
			Help: "Total number of segment rotations",
		},
	)

	r.SegmentsPurged = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_segments_purged_total",
			Help: "Total number of segments removed below a checkpoint",
		},
	)

	r.TailRepairsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_tail_repairs_total",
			Help: "Total number of torn segment tails truncated on open",
		},
	)

	r.BatchFlushesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_batch_flushes_total",
			Help: "Total number of background batch flushes",
		},
	)

	r.BatchSize = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "redolog_batch_size_entries",
			Help:    "Number of entries made durable by one batch flush",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
}

func (r *Registry) initJournalMetrics() {
	r.TxnsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "redolog_transactions_total",
			Help: "Total number of journal transactions by outcome",
		},
		[]string{"outcome"}, // commit, abort, failed
	)
}

func (r *Registry) initRecoveryMetrics() {
	r.RecoveryMailboxesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "redolog_recovery_mailboxes_total",
			Help: "Total number of mailboxes recovered by result",
		},
		[]string{"result"}, // ok, failed
	)

	r.RecoveryOpsApplied = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_recovery_ops_applied_total",
			Help: "Total number of operations redone during recovery",
		},
	)

	r.RecoveryOpsSkipped = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_recovery_ops_skipped_total",
			Help: "Total number of operations at or below the checkpoint",
		},
	)

	r.RecoveryTxnsDiscarded = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_recovery_txns_discarded_total",
			Help: "Total number of aborted or unterminated transactions dropped during recovery",
		},
	)

	r.RecoveryDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "redolog_recovery_duration_seconds",
			Help:    "Duration of single-mailbox recovery in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)
}
