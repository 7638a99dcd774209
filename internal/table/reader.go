// reader.go implements SSTable reads: bloom-pruned point lookups and ordered
// range iteration.
package table

import (
	"bufio"
	"io"
	"os"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/filter"
	"github.com/aalhour/loamkv/internal/index"
)

// Reader serves lookups against one immutable table. The bloom filter and
// sparse index are resident; data frames are read on demand. The reader owns
// its file handle until Close.
type Reader struct {
	meta  SSTableMeta
	bloom *filter.Bloom
	idx   *index.Sparse
	f     *os.File
}

// Open loads the meta sidecar, verifies its checksum, and opens the data
// file for reading.
func Open(meta SSTableMeta) (*Reader, error) {
	blob, err := os.ReadFile(meta.MetaPath)
	if err != nil {
		return nil, err
	}
	bloom, idx, ftr, err := decodeMeta(blob)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(meta.DataPath)
	if err != nil {
		return nil, err
	}
	// Footer bounds are authoritative when the descriptor came from a
	// minimal source such as a dump tool.
	if meta.MinKey == nil {
		meta.MinKey = ftr.minKey
		meta.MaxKey = ftr.maxKey
		meta.Count = ftr.count
		meta.DataSize = ftr.dataSize
		meta.TsMin = ftr.tsMin
		meta.TsMax = ftr.tsMax
	}
	return &Reader{meta: meta, bloom: bloom, idx: idx, f: f}, nil
}

// Meta returns the descriptor the reader was opened with.
func (r *Reader) Meta() SSTableMeta {
	return r.meta
}

// MayContain consults the resident bloom filter. A false return means the
// table definitely has no record for key.
func (r *Reader) MayContain(key base.Key) bool {
	return r.bloom.MayContain(key)
}

// Get returns the record stored for key. ok is false when the table has no
// record for key; a tombstone returns ok true with a nil value.
func (r *Reader) Get(key base.Key) (value base.Value, ts base.Timestamp, ok bool, err error) {
	if base.Compare(key, r.meta.MinKey) < 0 || base.Compare(key, r.meta.MaxKey) > 0 {
		return nil, 0, false, nil
	}
	if !r.bloom.MayContain(key) {
		return nil, 0, false, nil
	}
	offset, found := r.idx.FindBlockOffset(key)
	if !found {
		offset = 0
	}
	br := bufio.NewReader(io.NewSectionReader(r.f, int64(offset), int64(r.meta.DataSize)-int64(offset)))
	for {
		rec, done, err := ReadDataFrame(br)
		if err != nil {
			return nil, 0, false, err
		}
		if done {
			return nil, 0, false, nil
		}
		switch c := base.Compare(rec.Key, key); {
		case c == 0:
			return rec.Value, rec.Timestamp, true, nil
		case c > 0:
			return nil, 0, false, nil
		}
	}
}

// Iterator yields a table's records in ascending key order within a bound.
type Iterator struct {
	br  *bufio.Reader
	lo  base.Key
	hi  base.Key
	err error
}

// IterRange returns an iterator over records with lo <= key < hi. A nil
// bound leaves that end open. The iterator reads from the reader's file
// handle via an independent section reader, so concurrent iterators and
// Gets do not interfere.
func (r *Reader) IterRange(lo, hi base.Key) *Iterator {
	offset := uint64(0)
	if lo != nil {
		if off, ok := r.idx.FindBlockOffset(lo); ok {
			offset = off
		}
	}
	br := bufio.NewReader(io.NewSectionReader(r.f, int64(offset), int64(r.meta.DataSize)-int64(offset)))
	return &Iterator{br: br, lo: lo, hi: hi}
}

// Next returns the next in-bound record. ok is false once the range or the
// table is exhausted, or after an error; check Err then.
func (it *Iterator) Next() (rec base.Record, ok bool) {
	if it.err != nil {
		return rec, false
	}
	for {
		rec, done, err := ReadDataFrame(it.br)
		if err != nil {
			it.err = err
			return rec, false
		}
		if done {
			return rec, false
		}
		if it.lo != nil && base.Compare(rec.Key, it.lo) < 0 {
			continue
		}
		if it.hi != nil && base.Compare(rec.Key, it.hi) >= 0 {
			return rec, false
		}
		return rec, true
	}
}

// Err returns the first read error the iterator hit, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the data file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
