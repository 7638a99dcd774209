// writer.go implements WAL segment writing: append, fsync policy, rotation.
package wal

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/vfs"
)

// WriterConfig carries the WAL knobs the writer honors.
type WriterConfig struct {
	// FlushEveryWrite fsyncs the active segment before Append returns.
	FlushEveryWrite bool

	// RotateBytes starts a new segment once the active file exceeds this
	// size. Zero or negative disables rotation by size.
	RotateBytes int64

	// Logger receives segment lifecycle messages. Nil means a default
	// WARN-level logger.
	Logger logging.Logger
}

// Writer appends framed records to the active WAL segment. It is safe for
// concurrent use; appends are serialized and sequence numbers reflect append
// order.
type Writer struct {
	dir    string
	cfg    WriterConfig
	logger logging.Logger

	mu      sync.Mutex
	f       *os.File
	size    int64
	nextSeq base.Seq
	dirty   bool
	closed  bool
	buf     []byte
}

// NewWriter opens a writer over dir, creating it if needed. nextSeq is the
// sequence number the first appended record receives; recovery passes the
// value re-derived from replay. A fresh segment named for nextSeq is opened.
func NewWriter(dir string, nextSeq base.Seq, cfg WriterConfig) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &Writer{
		dir:     dir,
		cfg:     cfg,
		logger:  logging.OrDefault(cfg.Logger),
		nextSeq: nextSeq,
	}
	if err := w.openSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

// openSegment opens (or creates) the segment named for w.nextSeq and makes
// it the active file. Caller holds w.mu or is the constructor.
func (w *Writer) openSegment() error {
	path := filepath.Join(w.dir, SegmentName(w.nextSeq))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := vfs.SyncDir(w.dir); err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.size = info.Size()
	w.logger.Debugf(logging.NSWAL+"opened segment %s at offset %d", path, w.size)
	return nil
}

// Append frames rec, writes it to the active segment, and returns the
// sequence number assigned to it. With FlushEveryWrite the frame is durable
// before Append returns. The active segment rotates after the write if it
// exceeded RotateBytes.
func (w *Writer) Append(rec base.Record) (base.Seq, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, base.ErrClosed
	}

	w.buf = AppendFrame(w.buf[:0], rec)
	if _, err := w.f.Write(w.buf); err != nil {
		return 0, err
	}
	w.size += int64(len(w.buf))
	w.dirty = true

	if w.cfg.FlushEveryWrite {
		if err := w.f.Sync(); err != nil {
			return 0, err
		}
		w.dirty = false
	}

	seq := w.nextSeq
	w.nextSeq++

	if w.cfg.RotateBytes > 0 && w.size > w.cfg.RotateBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	return seq, nil
}

// Sync fsyncs the active segment. It is idempotent: a clean writer returns
// immediately.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return base.ErrClosed
	}
	return w.syncLocked()
}

func (w *Writer) syncLocked() error {
	if !w.dirty {
		return nil
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	w.dirty = false
	return nil
}

// Rotate closes the active segment and opens a fresh one named for the next
// sequence number. Flush calls this so the segments covering the flushed
// records become reclaimable.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return base.ErrClosed
	}
	return w.rotateLocked()
}

func (w *Writer) rotateLocked() error {
	if err := w.syncLocked(); err != nil {
		return err
	}
	old := w.f.Name()
	if err := w.f.Close(); err != nil {
		return err
	}
	if err := w.openSegment(); err != nil {
		return err
	}
	w.logger.Infof(logging.NSWAL+"rotated %s -> %s", old, w.f.Name())
	return nil
}

// NextSeq returns the sequence number the next Append will assign.
func (w *Writer) NextSeq() base.Seq {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq
}

// Close syncs and closes the active segment. Further appends fail with
// ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.syncLocked(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}
