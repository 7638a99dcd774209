// store.go implements the synchronous store: the public API, the write path
// (timestamp, WAL, memtable, flush) and the merged read path.
package loamkv

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/compaction"
	"github.com/aalhour/loamkv/internal/iterator"
	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/manifest"
	"github.com/aalhour/loamkv/internal/memtable"
	"github.com/aalhour/loamkv/internal/table"
	"github.com/aalhour/loamkv/internal/wal"
)

// Seq is a WAL sequence number assigned at append, reflecting commit order.
type Seq = base.Seq

// Timestamp is the store-assigned write timestamp in milliseconds.
type Timestamp = base.Timestamp

// KV is one key-value pair returned by Range.
type KV struct {
	Key   []byte
	Value []byte
}

// Store is the synchronous store: Put and Delete return after the record is
// durable in the WAL and applied to the memtable. It is safe for concurrent
// use.
type Store struct {
	opts   Options
	logger logging.Logger

	clock     *tsClock
	wal       *wal.Writer
	catalog   *manifest.Catalog
	compactor *compaction.Compactor
	dirLock   io.Closer
	metrics   *storeMetrics
	readers   *readerCache

	// mu is the store lock: it guards the memtable reference and flush.
	mu  sync.Mutex
	mem *memtable.Memtable

	levelLocks []sync.Mutex

	closed       atomic.Bool
	lastAppended atomic.Uint64

	// afterFlush, when set, runs after a successful flush while the store
	// lock is still held. The async store hooks its L0 policy here.
	afterFlush func()
}

// Open opens (or creates) the store rooted at opts.DataDir, recovers its
// persistent state, and makes it ready for reads and writes.
func Open(opts Options) (*Store, error) {
	return openStore(opts)
}

// Put inserts or updates key with value and returns the WAL sequence of the
// write. A nil value is stored as an empty value, not a deletion.
func (s *Store) Put(key, value []byte) (Seq, error) {
	if len(key) == 0 {
		return 0, errors.Wrap(base.ErrInvalidArgument, "empty key")
	}
	if value == nil {
		value = []byte{}
	}
	return s.write(base.Record{Key: key, Value: value})
}

// Delete records a tombstone for key and returns the WAL sequence of the
// write. Deleting an absent key succeeds.
func (s *Store) Delete(key []byte) (Seq, error) {
	if len(key) == 0 {
		return 0, errors.Wrap(base.ErrInvalidArgument, "empty key")
	}
	return s.write(base.Record{Key: key, Value: nil})
}

// write is the synchronous write path: the timestamp is taken from the clock
// first, then WAL append, memtable apply and threshold flush run under the
// store lock so that everything appended is applied before the lock releases.
func (s *Store) write(rec base.Record) (Seq, error) {
	if s.closed.Load() {
		return 0, base.ErrClosed
	}
	rec.Timestamp = s.clock.Next()

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.wal.Append(rec)
	if err != nil {
		return 0, err
	}
	s.lastAppended.Store(seq)
	s.metrics.observeAppend(wal.FrameSize(rec))

	s.applyLocked(rec)

	if s.mem.ApproximateSize() > s.opts.MemtableMaxBytes {
		if err := s.flushLocked(seq); err != nil {
			return 0, err
		}
	}
	return seq, nil
}

// applyLocked applies one record to the memtable. Caller holds the store
// lock.
func (s *Store) applyLocked(rec base.Record) {
	if rec.Tombstone() {
		s.mem.Delete(rec.Key, rec.Timestamp)
	} else {
		s.mem.Put(rec.Key, rec.Value, rec.Timestamp)
	}
	s.metrics.observeMemtable(s.mem.ApproximateSize())
}

// Get returns the value stored for key. A deleted or absent key returns
// ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, _, ok, err := s.GetWithMeta(key)
	if err != nil {
		return nil, err
	}
	if !ok || value == nil {
		return nil, base.ErrNotFound
	}
	return value, nil
}

// GetWithMeta returns the newest record for key with its timestamp. ok is
// false when no record exists anywhere; a tombstone returns ok true with a
// nil value, so callers can distinguish deleted from never-written.
func (s *Store) GetWithMeta(key []byte) (value []byte, ts Timestamp, ok bool, err error) {
	if len(key) == 0 {
		return nil, 0, false, errors.Wrap(base.ErrInvalidArgument, "empty key")
	}
	if s.closed.Load() {
		return nil, 0, false, base.ErrClosed
	}

	s.mu.Lock()
	value, ts, ok = s.mem.Get(key)
	s.mu.Unlock()
	if ok {
		return cloneValue(value), ts, true, nil
	}

	for _, meta := range s.readOrder(0) {
		r, err := s.readers.get(meta)
		if err != nil {
			return nil, 0, false, mapReadErr(err)
		}
		value, ts, ok, err = r.Get(key)
		if err != nil {
			return nil, 0, false, mapReadErr(err)
		}
		if ok {
			return cloneValue(value), ts, true, nil
		}
	}
	return nil, 0, false, nil
}

// Range returns the live key-value pairs with lo <= key < hi in ascending
// key order. Nil bounds leave the corresponding end open; tombstoned keys
// are omitted.
func (s *Store) Range(lo, hi []byte) ([]KV, error) {
	if lo != nil && hi != nil && base.Compare(lo, hi) > 0 {
		return nil, errors.Wrap(base.ErrInvalidArgument, "range lower bound above upper bound")
	}
	if s.closed.Load() {
		return nil, base.ErrClosed
	}

	s.mu.Lock()
	memRecs := s.mem.IterRange(lo, hi)
	s.mu.Unlock()

	sources := []iterator.Source{iterator.NewSlice(memRecs)}
	for _, meta := range s.readOrder(0) {
		if !overlaps(meta, lo, hi) {
			continue
		}
		r, err := s.readers.get(meta)
		if err != nil {
			return nil, mapReadErr(err)
		}
		sources = append(sources, r.IterRange(lo, hi))
	}

	merged := iterator.NewMerging(sources...)
	var out []KV
	for {
		rec, ok := merged.Next()
		if !ok {
			break
		}
		if rec.Tombstone() {
			continue
		}
		out = append(out, KV{
			Key:   append([]byte(nil), rec.Key...),
			Value: append([]byte(nil), rec.Value...),
		})
	}
	if err := merged.Err(); err != nil {
		return nil, mapReadErr(err)
	}
	return out, nil
}

// FlushMemtable forces the current memtable out to a new L0 SSTable.
func (s *Store) FlushMemtable() error {
	if s.closed.Load() {
		return base.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(s.lastAppended.Load())
}

// CompactLevel merges every table at level into level+1. The deepest level
// cannot be a source.
func (s *Store) CompactLevel(level int) error {
	if level < 0 || level >= s.opts.MaxLevels-1 {
		return errors.Wrapf(base.ErrInvalidArgument, "level %d outside [0, %d)", level, s.opts.MaxLevels-1)
	}
	if s.closed.Load() {
		return base.ErrClosed
	}
	s.levelLocks[level].Lock()
	defer s.levelLocks[level].Unlock()
	return s.compactLevel(level)
}

// compactLevel does the merge and catalog swap. Caller holds the level
// lock; compaction I/O runs outside the store lock.
func (s *Store) compactLevel(level int) error {
	inputs := s.catalog.Level(level)
	if len(inputs) == 0 {
		return nil
	}
	newestFirst := make([]table.SSTableMeta, len(inputs))
	for i, meta := range inputs {
		newestFirst[len(inputs)-1-i] = meta
	}

	outputs, err := s.compactor.Compact(newestFirst, level+1)
	if err != nil {
		s.metrics.observeCompaction("failed")
		return err
	}
	if err := s.catalog.Replace(inputs, outputs); err != nil {
		s.metrics.observeCompaction("failed")
		return errors.Wrapf(base.ErrCompaction, "catalog swap: %v", err)
	}

	var paths []string
	ids := make([]uint64, 0, len(inputs))
	for _, in := range inputs {
		paths = append(paths, in.DataPath, in.MetaPath)
		ids = append(ids, in.ID)
	}
	s.readers.drop(ids)
	if err := compaction.UnlinkInputs(paths); err != nil {
		s.logger.Warnf(logging.NSCompact+"unlink inputs: %v", err)
	}
	s.metrics.observeCompaction("completed")
	s.metrics.observeLevels(s.catalog)
	return nil
}

// readOrder returns the table descriptors in read precedence order starting
// at fromLevel: L0 newest to oldest, then each deeper level with newer
// table ids first.
func (s *Store) readOrder(fromLevel int) []table.SSTableMeta {
	var out []table.SSTableMeta
	for _, level := range s.catalog.Levels() {
		if level < fromLevel {
			continue
		}
		tables := s.catalog.Level(level)
		for i := len(tables) - 1; i >= 0; i-- {
			out = append(out, tables[i])
		}
	}
	return out
}

// Close flushes nothing, syncs and closes the WAL, releases table readers
// and the directory lock. The memtable's contents remain replayable from
// the WAL.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.closeResources()
}

// closeResources releases everything Open acquired. The closed flag must
// already be set so no new operation can start.
func (s *Store) closeResources() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if err := s.wal.Close(); err != nil {
		firstErr = err
	}
	s.readers.closeAll()
	if err := s.dirLock.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.metrics.unregister()
	s.logger.Infof(logging.NSDB + "store closed")
	return firstErr
}

// overlaps reports whether the table's key bounds intersect [lo, hi).
func overlaps(meta table.SSTableMeta, lo, hi []byte) bool {
	if hi != nil && base.Compare(meta.MinKey, hi) >= 0 {
		return false
	}
	if lo != nil && base.Compare(meta.MaxKey, lo) < 0 {
		return false
	}
	return true
}

func cloneValue(v []byte) []byte {
	if v == nil {
		return nil
	}
	return append([]byte{}, v...)
}

// mapReadErr converts a vanished-file error into the transient read
// sentinel: the reader lost a race with a compaction swap and a retry will
// see the new catalog.
func mapReadErr(err error) error {
	if os.IsNotExist(errors.Cause(err)) {
		return errors.Wrapf(base.ErrTransientRead, "%v", err)
	}
	return err
}
