// Package compaction implements level merge compaction: a k-way merge over
// input tables with last-writer-wins resolution, tombstone garbage
// collection at the deepest level, and size-split output tables.
package compaction

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/iterator"
	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/table"
)

// Config carries the compaction knobs.
type Config struct {
	// SSTDir is the directory output tables are written to.
	SSTDir string

	// SSTableMaxBytes splits output once a table's data reaches it.
	SSTableMaxBytes uint64

	// BloomFPRate is the bloom target for output tables.
	BloomFPRate float64

	// IndexInterval is the sparse index stride for output tables.
	IndexInterval int

	// MaxLevels is the LSM depth; tombstones are only collectable when the
	// target level is the deepest one.
	MaxLevels int

	// TombstoneRetentionSeconds is the GC window: a tombstone older than
	// this at the deepest level is dropped.
	TombstoneRetentionSeconds int64

	// NextID allocates output table identities.
	NextID func() uint64

	// Logger receives compaction progress messages.
	Logger logging.Logger

	// Now returns the current time; tests override it to age tombstones.
	Now func() time.Time
}

// Compactor merges input tables into output tables one level down.
type Compactor struct {
	cfg    Config
	logger logging.Logger
	now    func() time.Time
}

// New creates a compactor.
func New(cfg Config) *Compactor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Compactor{
		cfg:    cfg,
		logger: logging.OrDefault(cfg.Logger),
		now:    now,
	}
}

// Compact merges inputs into new tables at targetLevel and returns their
// descriptors. Inputs must be ordered newest-first so that equal-timestamp
// ties resolve toward the newer table. The catalog swap and input unlink are
// the caller's responsibility; on error all partially written outputs are
// removed and the inputs remain untouched.
func (c *Compactor) Compact(inputs []table.SSTableMeta, targetLevel int) ([]table.SSTableMeta, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	c.logger.Infof(logging.NSCompact+"compacting %d tables to level %d", len(inputs), targetLevel)

	readers := make([]*table.Reader, 0, len(inputs))
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()
	sources := make([]iterator.Source, 0, len(inputs))
	for _, meta := range inputs {
		r, err := table.Open(meta)
		if err != nil {
			return nil, errors.Wrapf(base.ErrCompaction, "open input %s: %v", meta.DataPath, err)
		}
		readers = append(readers, r)
		sources = append(sources, r.IterRange(nil, nil))
	}

	merged := iterator.NewMerging(sources...)
	outputs, err := c.writeOutputs(merged, targetLevel)
	if err != nil {
		for _, out := range outputs {
			_ = removeTable(out)
		}
		return nil, err
	}
	if err := merged.Err(); err != nil {
		for _, out := range outputs {
			_ = removeTable(out)
		}
		return nil, errors.Wrapf(base.ErrCompaction, "merge: %v", err)
	}

	c.logger.Infof(logging.NSCompact+"compaction produced %d tables at level %d", len(outputs), targetLevel)
	return outputs, nil
}

// keepTombstone reports whether a tombstone survives GC at targetLevel.
func (c *Compactor) keepTombstone(ts base.Timestamp, targetLevel int) bool {
	if targetLevel < c.cfg.MaxLevels-1 {
		return true
	}
	ageSeconds := (c.now().UnixMilli() - int64(ts)) / 1000
	return ageSeconds <= c.cfg.TombstoneRetentionSeconds
}

func (c *Compactor) writeOutputs(merged *iterator.Merging, targetLevel int) ([]table.SSTableMeta, error) {
	var outputs []table.SSTableMeta
	var w *table.Writer
	var id uint64

	finalize := func() error {
		meta, err := w.Finalize(targetLevel, id)
		if err != nil {
			w.Abort()
			return err
		}
		outputs = append(outputs, meta)
		w = nil
		return nil
	}

	for {
		rec, ok := merged.Next()
		if !ok {
			break
		}
		if rec.Tombstone() && !c.keepTombstone(rec.Timestamp, targetLevel) {
			continue
		}

		if w != nil && w.DataSize() >= c.cfg.SSTableMaxBytes {
			if err := finalize(); err != nil {
				return outputs, err
			}
		}
		if w == nil {
			id = c.cfg.NextID()
			var err error
			w, err = table.NewWriter(
				filepath.Join(c.cfg.SSTDir, table.DataFileName(targetLevel, id)),
				filepath.Join(c.cfg.SSTDir, table.MetaFileName(targetLevel, id)),
				table.WriterConfig{IndexInterval: c.cfg.IndexInterval, BloomFPRate: c.cfg.BloomFPRate},
			)
			if err != nil {
				return outputs, errors.Wrapf(base.ErrCompaction, "open output writer: %v", err)
			}
		}
		if err := w.Add(rec); err != nil {
			w.Abort()
			return outputs, errors.Wrapf(base.ErrCompaction, "write output: %v", err)
		}
	}

	if w != nil {
		if err := finalize(); err != nil {
			return outputs, err
		}
	}
	return outputs, nil
}

func removeTable(meta table.SSTableMeta) error {
	if err := removeIfExists(meta.DataPath); err != nil {
		return err
	}
	return removeIfExists(meta.MetaPath)
}
