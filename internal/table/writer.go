// writer.go implements the SSTable writer: ordered append, block sampling,
// bloom construction and atomic two-file publish.
package table

import (
	"os"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/filter"
	"github.com/aalhour/loamkv/internal/index"
	"github.com/aalhour/loamkv/internal/vfs"
)

// DefaultIndexInterval is the number of records per block: the first key of
// every block is sampled into the sparse index.
const DefaultIndexInterval = 16

// WriterConfig carries the table construction knobs.
type WriterConfig struct {
	// IndexInterval is the records-per-block sampling stride. Zero or
	// negative means DefaultIndexInterval.
	IndexInterval int

	// BloomFPRate is the bloom filter's target false-positive rate.
	BloomFPRate float64
}

// Writer builds one SSTable. Records must be added in non-decreasing key
// order; Finalize publishes both files atomically and returns the
// descriptor. A writer is single-use.
type Writer struct {
	dataPath string
	metaPath string
	tmpData  *os.File
	cfg      WriterConfig

	idx     *index.Sparse
	keys    [][]byte
	buf     []byte
	offset  uint64
	count   uint64
	prevKey base.Key
	minKey  base.Key
	maxKey  base.Key
	tsMin   base.Timestamp
	tsMax   base.Timestamp
}

// NewWriter starts a table at dataPath/metaPath. Both files are written
// under temporary names and renamed into place by Finalize.
func NewWriter(dataPath, metaPath string, cfg WriterConfig) (*Writer, error) {
	if cfg.IndexInterval <= 0 {
		cfg.IndexInterval = DefaultIndexInterval
	}
	f, err := os.OpenFile(dataPath+".tmp", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{
		dataPath: dataPath,
		metaPath: metaPath,
		tmpData:  f,
		cfg:      cfg,
		idx:      index.New(),
	}, nil
}

// Add appends one record. Keys must arrive in non-decreasing order; an
// out-of-order key fails with ErrSSTable and poisons nothing (the caller
// aborts the writer).
func (w *Writer) Add(rec base.Record) error {
	if w.prevKey != nil && base.Compare(rec.Key, w.prevKey) < 0 {
		return errors.Wrapf(base.ErrSSTable, "out-of-order key %q after %q", rec.Key, w.prevKey)
	}

	if w.count%uint64(w.cfg.IndexInterval) == 0 {
		w.idx.Add(rec.Key, w.offset)
	}

	w.buf = AppendDataFrame(w.buf[:0], rec)
	if _, err := w.tmpData.Write(w.buf); err != nil {
		return err
	}
	w.offset += uint64(len(w.buf))

	key := append([]byte(nil), rec.Key...)
	w.keys = append(w.keys, key)
	if w.minKey == nil {
		w.minKey = key
		w.tsMin = rec.Timestamp
		w.tsMax = rec.Timestamp
	} else {
		if rec.Timestamp < w.tsMin {
			w.tsMin = rec.Timestamp
		}
		if rec.Timestamp > w.tsMax {
			w.tsMax = rec.Timestamp
		}
	}
	w.maxKey = key
	w.prevKey = key
	w.count++
	return nil
}

// Count returns the number of records added so far.
func (w *Writer) Count() uint64 {
	return w.count
}

// DataSize returns the data bytes written so far, excluding the sentinel.
// Flush and compaction consult it to split output tables.
func (w *Writer) DataSize() uint64 {
	return w.offset
}

// Finalize writes the sentinel and the meta sidecar, fsyncs both temporary
// files and renames them into place. An empty table cannot be finalized.
func (w *Writer) Finalize(level int, id uint64) (SSTableMeta, error) {
	var meta SSTableMeta
	if w.count == 0 {
		return meta, errors.Wrap(base.ErrSSTable, "finalize of empty table")
	}

	w.buf = AppendSentinel(w.buf[:0])
	if _, err := w.tmpData.Write(w.buf); err != nil {
		return meta, err
	}
	dataSize := w.offset + 8
	if err := w.tmpData.Sync(); err != nil {
		return meta, err
	}
	if err := w.tmpData.Close(); err != nil {
		return meta, err
	}

	bloom := filter.New(len(w.keys), w.cfg.BloomFPRate)
	for _, k := range w.keys {
		bloom.Add(k)
	}

	blob := encodeMeta(bloom.Serialize(), w.idx.Serialize(), footer{
		minKey:   w.minKey,
		maxKey:   w.maxKey,
		tsMin:    w.tsMin,
		tsMax:    w.tsMax,
		count:    w.count,
		dataSize: dataSize,
		version:  FormatVersion,
	})
	if err := vfs.WriteFileAtomic(w.metaPath, blob, 0o644); err != nil {
		return meta, err
	}
	if err := vfs.Rename(w.dataPath+".tmp", w.dataPath); err != nil {
		return meta, err
	}

	return SSTableMeta{
		ID:       id,
		Level:    level,
		DataPath: w.dataPath,
		MetaPath: w.metaPath,
		MinKey:   w.minKey,
		MaxKey:   w.maxKey,
		Count:    w.count,
		DataSize: dataSize,
		TsMin:    w.tsMin,
		TsMax:    w.tsMax,
	}, nil
}

// Abort discards the writer and removes its temporary file.
func (w *Writer) Abort() {
	_ = w.tmpData.Close()
	_ = os.Remove(w.dataPath + ".tmp")
}
