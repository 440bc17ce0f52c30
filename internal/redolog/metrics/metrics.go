package metrics

import (
	"time"
)

// RecordAppend records one appended entry of the given kind.
func (r *Registry) RecordAppend(kind string, frameBytes int64) {
	if r == nil {
		return
	}
	r.AppendsTotal.WithLabelValues(kind).Inc()
	r.BytesWritten.Add(float64(frameBytes))
}

func (r *Registry) RecordFsync(d time.Duration) {
	if r == nil {
		return
	}
	r.FsyncDuration.Observe(d.Seconds())
}

func (r *Registry) RecordRotation() {
	if r == nil {
		return
	}
	r.RotationsTotal.Inc()
}

func (r *Registry) RecordPurge(segments int) {
	if r == nil {
		return
	}
	r.SegmentsPurged.Add(float64(segments))
}

func (r *Registry) RecordTailRepair() {
	if r == nil {
		return
	}
	r.TailRepairsTotal.Inc()
}

func (r *Registry) RecordBatchFlush(entries int) {
	if r == nil {
		return
	}
	r.BatchFlushesTotal.Inc()
	r.BatchSize.Observe(float64(entries))
}

// RecordTxn records a journal transaction outcome: commit, abort or failed.
func (r *Registry) RecordTxn(outcome string) {
	if r == nil {
		return
	}
	r.TxnsTotal.WithLabelValues(outcome).Inc()
}

// RecordRecovery records the result of recovering one mailbox.
func (r *Registry) RecordRecovery(ok bool, applied, skipped, discarded int, d time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.RecoveryMailboxesTotal.WithLabelValues(result).Inc()
	r.RecoveryOpsApplied.Add(float64(applied))
	r.RecoveryOpsSkipped.Add(float64(skipped))
	r.RecoveryTxnsDiscarded.Add(float64(discarded))
	r.RecoveryDuration.Observe(d.Seconds())
}
