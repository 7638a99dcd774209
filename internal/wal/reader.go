// reader.go implements WAL replay.
//
// Replay walks all segments in creation order. The tolerance policy:
//
//   - A truncated frame at the tail of a segment is silently dropped. That is
//     the normal shape of a crash mid-append.
//   - A bad CRC or bad magic after at least one good frame terminates that
//     segment, is reported, and replay continues with the next segment.
//   - A segment whose very first frame is unreadable (bad magic or bad CRC at
//     offset 0) is hard corruption.
package wal

import (
	"os"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
)

// Reporter is called when mid-segment corruption is detected and skipped.
type Reporter interface {
	// Corruption is called with the segment path, the byte offset of the bad
	// frame, and the decode error.
	Corruption(path string, offset int64, err error)
}

// Entry is one replayed record together with the sequence number it was
// assigned at append time.
type Entry struct {
	Seq    base.Seq
	Record base.Record
}

// ReplaySegment decodes the records of one segment. firstSeq is the sequence
// number of the segment's first record (taken from its name). Truncated
// tails are dropped; mid-segment corruption is reported and terminates the
// segment; an unreadable first frame returns ErrWALCorruption.
func ReplaySegment(path string, firstSeq base.Seq, rep Reporter) ([]Entry, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	offset := int64(0)
	seq := firstSeq
	for len(buf) > 0 {
		rec, n, err := DecodeFrame(buf)
		if err != nil {
			if IsTruncated(err) {
				// Clean crash at the tail.
				return entries, nil
			}
			if offset == 0 {
				return nil, errors.Wrapf(base.ErrWALCorruption, "%s: unreadable segment header: %v", path, err)
			}
			if rep != nil {
				rep.Corruption(path, offset, err)
			}
			return entries, nil
		}
		entries = append(entries, Entry{Seq: seq, Record: rec})
		seq++
		offset += int64(n)
		buf = buf[n:]
	}
	return entries, nil
}

// ReplayDir replays every segment under dir in creation order and returns
// the surviving entries plus the next sequence number the writer should
// assign. An empty or missing directory yields no entries and nextSeq 1.
func ReplayDir(dir string, rep Reporter) ([]Entry, base.Seq, error) {
	segs, err := ListSegments(dir)
	if err != nil {
		return nil, 0, err
	}
	var all []Entry
	nextSeq := base.Seq(1)
	for _, seg := range segs {
		entries, err := ReplaySegment(seg.Path, seg.FirstSeq, rep)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, entries...)
		if end := seg.FirstSeq + base.Seq(len(entries)); end > nextSeq {
			nextSeq = end
		}
	}
	return all, nextSeq, nil
}
