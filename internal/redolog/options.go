package redolog

import (
	"fmt"
	"strings"
	"time"
)

// DurabilityPolicy selects when appended entries are forced to stable storage.
type DurabilityPolicy string

const (
	// DurabilitySync flushes and fsyncs after every appended entry.
	DurabilitySync DurabilityPolicy = "sync"
	// DurabilityBatched flushes after BatchEntries entries or BatchInterval,
	// whichever comes first. A crash may lose the last unflushed batch.
	DurabilityBatched DurabilityPolicy = "batched"
)

// ParseDurabilityPolicy parses a policy name. The empty string yields DurabilitySync.
func ParseDurabilityPolicy(s string) (DurabilityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(DurabilitySync):
		return DurabilitySync, nil
	case string(DurabilityBatched):
		return DurabilityBatched, nil
	default:
		return "", fmt.Errorf("redolog: unknown durability policy %q", s)
	}
}

// Options configures a redo log root and every per-mailbox log under it.
type Options struct {
	Durability    DurabilityPolicy `yaml:"durability"     validate:"omitempty,oneof=sync batched"`
	BatchEntries  int              `yaml:"batch_entries"  validate:"gte=0"`
	BatchInterval time.Duration    `yaml:"batch_interval" validate:"gte=0"`

	// 0 means "never rotate on size"
	SegmentMaxBytes int64 `yaml:"segment_max_bytes" validate:"gte=0"`
	// 0 means "never rotate on age"
	SegmentMaxAge time.Duration `yaml:"segment_max_age" validate:"gte=0"`

	// Compress enables snappy compression of operation payloads in newly
	// created segments. Existing segments keep the flag they were created with.
	Compress bool `yaml:"compress"`

	RecoveryParallelism int `yaml:"recovery_parallelism" validate:"gte=0"`

	// File-based logging configuration
	LogDir     string `yaml:"log_dir"`
	LogMaxSize int    `yaml:"log_max_size"     validate:"gte=0"`
	LogMaxBak  int    `yaml:"log_max_backups"  validate:"gte=0"`
	LogLevel   string `yaml:"log_level"        validate:"omitempty,oneof=debug info warn error"`
}

// DefaultOptions returns Options with synchronous durability and default rotation.
func DefaultOptions() Options {
	return Options{
		Durability:          DurabilitySync,
		BatchEntries:        DefaultBatchEntries,
		BatchInterval:       DefaultBatchInterval,
		SegmentMaxBytes:     DefaultSegmentMaxBytes,
		SegmentMaxAge:       DefaultSegmentMaxAge,
		RecoveryParallelism: DefaultRecoveryParallelism,
		LogMaxSize:          DefaultLogMaxSize,
		LogMaxBak:           DefaultLogMaxBackups,
		LogLevel:            DefaultLogLevel,
	}
}

// WithDefaults fills zero-valued fields that have no meaningful zero setting.
func (o Options) WithDefaults() Options {
	if o.Durability == "" {
		o.Durability = DurabilitySync
	}
	if o.Durability == DurabilityBatched {
		if o.BatchEntries <= 0 {
			o.BatchEntries = DefaultBatchEntries
		}
		if o.BatchInterval <= 0 {
			o.BatchInterval = DefaultBatchInterval
		}
	}
	if o.RecoveryParallelism <= 0 {
		o.RecoveryParallelism = DefaultRecoveryParallelism
	}
	return o
}
