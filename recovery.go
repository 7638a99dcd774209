// recovery.go implements Open: directory layout, the startup lock, catalog
// load, orphan cleanup and WAL replay into a fresh memtable.
package loamkv

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/compaction"
	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/manifest"
	"github.com/aalhour/loamkv/internal/memtable"
	"github.com/aalhour/loamkv/internal/table"
	"github.com/aalhour/loamkv/internal/vfs"
	"github.com/aalhour/loamkv/internal/wal"
)

const (
	walDirName  = "wal"
	sstDirName  = "sst"
	metaDirName = "meta"

	manifestName = "MANIFEST.json"
	lockName     = "LOCK"
)

func (s *Store) walDir() string  { return filepath.Join(s.opts.DataDir, walDirName) }
func (s *Store) sstDir() string  { return filepath.Join(s.opts.DataDir, sstDirName) }
func (s *Store) metaDir() string { return filepath.Join(s.opts.DataDir, metaDirName) }

// replayReporter logs mid-segment corruption surfaced during WAL replay.
type replayReporter struct {
	logger logging.Logger
}

func (r replayReporter) Corruption(path string, offset int64, err error) {
	r.logger.Warnf(logging.NSRecovery+"segment %s corrupt at offset %d, dropping tail: %v",
		filepath.Base(path), offset, err)
}

func openStore(opts Options) (*Store, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	s := &Store{
		opts:       opts,
		logger:     logger,
		clock:      newClock(),
		readers:    newReaderCache(),
		levelLocks: make([]sync.Mutex, opts.MaxLevels),
	}
	for _, dir := range []string{opts.DataDir, s.walDir(), s.sstDir(), s.metaDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(base.ErrRecovery, "create %s: %v", dir, err)
		}
	}

	dirLock, err := vfs.Lock(filepath.Join(opts.DataDir, lockName))
	if err != nil {
		return nil, err
	}
	s.dirLock = dirLock
	ok := false
	defer func() {
		if !ok {
			_ = dirLock.Close()
		}
	}()

	removeTempFiles(logger, s.walDir(), s.sstDir(), s.metaDir())

	catalog := manifest.NewCatalog(filepath.Join(s.metaDir(), manifestName), logger)
	if err := catalog.Load(); err != nil {
		return nil, err
	}
	s.catalog = catalog
	if err := verifyCatalogFiles(catalog); err != nil {
		return nil, err
	}
	removeOrphanTables(logger, s.sstDir(), catalog)

	entries, nextSeq, err := wal.ReplayDir(s.walDir(), replayReporter{logger: logger})
	if err != nil {
		return nil, err
	}
	s.mem = memtable.New()
	for _, e := range entries {
		s.clock.Observe(e.Record.Timestamp)
		s.applyReplayed(e.Record)
	}
	for _, meta := range catalog.All() {
		s.clock.Observe(meta.TsMax)
	}
	s.lastAppended.Store(uint64(nextSeq - 1))
	if len(entries) > 0 {
		logger.Infof(logging.NSRecovery+"replayed %d records, next sequence %d", len(entries), nextSeq)
	}

	w, err := wal.NewWriter(s.walDir(), nextSeq, wal.WriterConfig{
		FlushEveryWrite: opts.WALFlushEveryWrite,
		RotateBytes:     opts.WALFileRotateBytes,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	s.wal = w

	s.compactor = compaction.New(compaction.Config{
		SSTDir:                    s.sstDir(),
		SSTableMaxBytes:           opts.SSTableMaxBytes,
		BloomFPRate:               opts.BloomFalsePositiveRate,
		IndexInterval:             opts.IndexInterval,
		MaxLevels:                 opts.MaxLevels,
		TombstoneRetentionSeconds: opts.TombstoneRetentionSeconds,
		NextID:                    catalog.NextID,
		Logger:                    logger,
	})

	metrics, err := newStoreMetrics(opts.MetricsRegisterer)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	s.metrics = metrics
	s.metrics.observeLevels(catalog)
	s.metrics.observeMemtable(s.mem.ApproximateSize())

	logger.Infof(logging.NSDB+"store opened at %s, %d live tables", opts.DataDir, len(catalog.All()))
	ok = true
	return s, nil
}

// applyReplayed applies one replayed record to the memtable during open,
// before the store is visible to any other goroutine.
func (s *Store) applyReplayed(rec base.Record) {
	if rec.Tombstone() {
		s.mem.Delete(rec.Key, rec.Timestamp)
	} else {
		s.mem.Put(rec.Key, rec.Value, rec.Timestamp)
	}
}

// verifyCatalogFiles fails open when a manifest-referenced file is missing.
func verifyCatalogFiles(catalog *manifest.Catalog) error {
	for _, meta := range catalog.All() {
		for _, path := range []string{meta.DataPath, meta.MetaPath} {
			if !vfs.Exists(path) {
				return errors.Wrapf(base.ErrRecovery, "manifest references missing file %s", path)
			}
		}
	}
	return nil
}

// removeTempFiles deletes leftovers from interrupted atomic writes.
func removeTempFiles(logger logging.Logger, dirs ...string) {
	for _, dir := range dirs {
		names, err := vfs.ListDir(dir)
		if err != nil {
			continue
		}
		for _, name := range names {
			if filepath.Ext(name) != ".tmp" {
				continue
			}
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil {
				logger.Warnf(logging.NSRecovery+"remove temp file %s: %v", name, err)
				continue
			}
			logger.Infof(logging.NSRecovery+"removed temp file %s", name)
		}
	}
}

// removeOrphanTables deletes table files on disk that the manifest does not
// reference, the residue of a crash between table write and catalog save.
func removeOrphanTables(logger logging.Logger, sstDir string, catalog *manifest.Catalog) {
	live := make(map[string]bool)
	for _, meta := range catalog.All() {
		live[filepath.Base(meta.DataPath)] = true
		live[filepath.Base(meta.MetaPath)] = true
	}
	names, err := vfs.ListDir(sstDir)
	if err != nil {
		return
	}
	for _, name := range names {
		if live[name] {
			continue
		}
		if !table.IsTableFileName(name) {
			continue
		}
		if err := os.Remove(filepath.Join(sstDir, name)); err != nil {
			logger.Warnf(logging.NSRecovery+"remove orphan table file %s: %v", name, err)
			continue
		}
		logger.Infof(logging.NSRecovery+"removed orphan table file %s", name)
	}
}
