package redolog

import "time"

const (
	DefaultSegmentMaxBytes int64 = 64 * 1024 * 1024
	DefaultSegmentMaxAge         = 24 * time.Hour

	DefaultBatchEntries  = 128
	DefaultBatchInterval = 10 * time.Millisecond

	DefaultRecoveryParallelism = 4
)

// Log file defaults
const (
	DefaultAppDir        = ".redolog"
	DefaultLogDir        = "logs"
	DefaultLogFileName   = "redolog.log"
	DefaultLogMaxSize    = 100
	DefaultLogMaxBackups = 3
	DefaultLogLevel      = "info"
)

// MailboxDirPrefix names the per-mailbox directory under the log root.
const MailboxDirPrefix = "mbox-"
