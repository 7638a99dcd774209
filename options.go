// options.go defines the store configuration surface.
package loamkv

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/logging"
)

// Logger is the five-level logging interface the store emits through.
// Implementations must be safe for concurrent use.
type Logger = logging.Logger

// Options configures a store. DefaultOptions returns a fully populated set;
// a zero field on a hand-built Options means the documented default, except
// WALFlushEveryWrite where false is a deliberate durability trade.
type Options struct {
	// DataDir is the root for all on-disk artifacts. Required.
	DataDir string

	// MemtableMaxBytes is the flush threshold. Default 64 MiB.
	MemtableMaxBytes uint64

	// WALFlushEveryWrite fsyncs the WAL before every append returns. When
	// false, records are batched and synced at rotation, flush and close.
	WALFlushEveryWrite bool

	// WALFileRotateBytes rotates the active WAL segment past this size.
	// Default 64 MiB.
	WALFileRotateBytes int64

	// BloomFalsePositiveRate is the per-table bloom target. Default 0.01.
	BloomFalsePositiveRate float64

	// SSTableMaxBytes splits flush and compaction outputs at this size.
	// Default 64 MiB.
	SSTableMaxBytes uint64

	// MaxLevels is the depth of the LSM. Default 6.
	MaxLevels int

	// TombstoneRetentionSeconds is the GC window for deletions at the
	// deepest level. Default 86400 (one day).
	TombstoneRetentionSeconds int64

	// IndexInterval is the records-per-block stride of the sparse index.
	// Default 16.
	IndexInterval int

	// ApplyQueueMax bounds the async apply queue. Default 100000.
	ApplyQueueMax int

	// ApplyLockTimeout bounds the fallback timed lock acquire an async
	// writer attempts when the apply queue is full. Default 5ms.
	ApplyLockTimeout time.Duration

	// Logger receives store logs. Nil means a WARN-level stderr logger.
	Logger Logger

	// MetricsRegisterer, when non-nil, receives the store's Prometheus
	// collectors. Nil disables metrics.
	MetricsRegisterer prometheus.Registerer
}

// DefaultOptions returns the default configuration rooted at dataDir.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:                   dataDir,
		MemtableMaxBytes:          64 << 20,
		WALFlushEveryWrite:        true,
		WALFileRotateBytes:        64 << 20,
		BloomFalsePositiveRate:    0.01,
		SSTableMaxBytes:           64 << 20,
		MaxLevels:                 6,
		TombstoneRetentionSeconds: 86400,
		IndexInterval:             16,
		ApplyQueueMax:             100000,
		ApplyLockTimeout:          5 * time.Millisecond,
	}
}

// withDefaults fills zero fields with their documented defaults.
func (o Options) withDefaults() Options {
	def := DefaultOptions(o.DataDir)
	if o.MemtableMaxBytes == 0 {
		o.MemtableMaxBytes = def.MemtableMaxBytes
	}
	if o.WALFileRotateBytes == 0 {
		o.WALFileRotateBytes = def.WALFileRotateBytes
	}
	if o.BloomFalsePositiveRate == 0 {
		o.BloomFalsePositiveRate = def.BloomFalsePositiveRate
	}
	if o.SSTableMaxBytes == 0 {
		o.SSTableMaxBytes = def.SSTableMaxBytes
	}
	if o.MaxLevels == 0 {
		o.MaxLevels = def.MaxLevels
	}
	if o.TombstoneRetentionSeconds == 0 {
		o.TombstoneRetentionSeconds = def.TombstoneRetentionSeconds
	}
	if o.IndexInterval == 0 {
		o.IndexInterval = def.IndexInterval
	}
	if o.ApplyQueueMax == 0 {
		o.ApplyQueueMax = def.ApplyQueueMax
	}
	if o.ApplyLockTimeout == 0 {
		o.ApplyLockTimeout = def.ApplyLockTimeout
	}
	o.Logger = logging.OrDefault(o.Logger)
	return o
}

// validate rejects unusable configurations with ErrInvalidArgument.
func (o Options) validate() error {
	if o.DataDir == "" {
		return errors.Wrap(base.ErrInvalidArgument, "DataDir is required")
	}
	if o.BloomFalsePositiveRate <= 0 || o.BloomFalsePositiveRate >= 1 {
		return errors.Wrapf(base.ErrInvalidArgument, "BloomFalsePositiveRate %v outside (0, 1)", o.BloomFalsePositiveRate)
	}
	if o.MaxLevels < 2 {
		return errors.Wrapf(base.ErrInvalidArgument, "MaxLevels %d below 2", o.MaxLevels)
	}
	if o.WALFileRotateBytes < 0 {
		return errors.Wrapf(base.ErrInvalidArgument, "WALFileRotateBytes %d negative", o.WALFileRotateBytes)
	}
	if o.TombstoneRetentionSeconds < 0 {
		return errors.Wrapf(base.ErrInvalidArgument, "TombstoneRetentionSeconds %d negative", o.TombstoneRetentionSeconds)
	}
	if o.IndexInterval < 1 {
		return errors.Wrapf(base.ErrInvalidArgument, "IndexInterval %d below 1", o.IndexInterval)
	}
	if o.ApplyQueueMax < 1 {
		return errors.Wrapf(base.ErrInvalidArgument, "ApplyQueueMax %d below 1", o.ApplyQueueMax)
	}
	if o.ApplyLockTimeout < 0 {
		return errors.Wrapf(base.ErrInvalidArgument, "ApplyLockTimeout %v negative", o.ApplyLockTimeout)
	}
	return nil
}
