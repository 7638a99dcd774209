// flush.go turns the full memtable into L0 SSTables and reclaims WAL
// segments made obsolete by the flush.
package loamkv

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/memtable"
	"github.com/aalhour/loamkv/internal/table"
	"github.com/aalhour/loamkv/internal/wal"
)

// flushLocked writes the current memtable out as one or more L0 tables,
// registers them in the catalog, rotates the WAL and removes segments fully
// covered by flushedThrough. Caller holds the store lock; a zero
// flushedThrough skips WAL reclamation.
func (s *Store) flushLocked(flushedThrough Seq) error {
	if s.mem.Len() == 0 {
		return nil
	}
	frozen := s.mem
	s.mem = memtable.New()

	metas, err := s.writeL0Tables(frozen.Items())
	if err != nil {
		s.mem = frozen
		return err
	}
	for i, meta := range metas {
		if err := s.catalog.Add(meta); err != nil {
			s.mem = frozen
			removeTables(metas[i:])
			return errors.Wrapf(base.ErrRecovery, "register flushed table: %v", err)
		}
	}

	if err := s.wal.Rotate(); err != nil {
		return err
	}
	if flushedThrough > 0 {
		removed, err := wal.RemoveObsolete(s.walDir(), flushedThrough)
		if err != nil {
			s.logger.Warnf(logging.NSFlush+"remove obsolete segments: %v", err)
		}
		for _, path := range removed {
			s.logger.Debugf(logging.NSFlush+"removed segment %s", filepath.Base(path))
		}
	}

	s.logger.Infof(logging.NSFlush+"flushed %d records into %d tables", frozen.Len(), len(metas))
	s.metrics.observeFlush()
	s.metrics.observeMemtable(s.mem.ApproximateSize())
	s.metrics.observeLevels(s.catalog)
	if s.afterFlush != nil {
		s.afterFlush()
	}
	return nil
}

// writeL0Tables streams items in key order into L0 tables, splitting output
// at the configured table size.
func (s *Store) writeL0Tables(items []base.Record) ([]table.SSTableMeta, error) {
	var (
		metas []table.SSTableMeta
		w     *table.Writer
		id    uint64
	)
	finish := func() error {
		if w == nil {
			return nil
		}
		meta, err := w.Finalize(0, id)
		if err != nil {
			return err
		}
		metas = append(metas, meta)
		w = nil
		return nil
	}

	for _, rec := range items {
		if w == nil {
			id = s.catalog.NextID()
			dataPath := filepath.Join(s.sstDir(), table.DataFileName(0, id))
			metaPath := filepath.Join(s.sstDir(), table.MetaFileName(0, id))
			nw, err := table.NewWriter(dataPath, metaPath, table.WriterConfig{
				IndexInterval: s.opts.IndexInterval,
				BloomFPRate:   s.opts.BloomFalsePositiveRate,
			})
			if err != nil {
				removeTables(metas)
				return nil, err
			}
			w = nw
		}
		if err := w.Add(rec); err != nil {
			w.Abort()
			removeTables(metas)
			return nil, err
		}
		if w.DataSize() >= s.opts.SSTableMaxBytes {
			if err := finish(); err != nil {
				removeTables(metas)
				return nil, err
			}
		}
	}
	if err := finish(); err != nil {
		removeTables(metas)
		return nil, err
	}
	return metas, nil
}

func removeTables(metas []table.SSTableMeta) {
	for _, meta := range metas {
		_ = os.Remove(meta.DataPath)
		_ = os.Remove(meta.MetaPath)
	}
}
