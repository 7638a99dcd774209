// segments.go handles WAL segment naming, listing and reclamation.
//
// A segment is named wal-<firstSeq>.wal where firstSeq is the sequence number
// of its first record, zero-padded to 20 digits so a lexical directory sort
// yields creation order.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/vfs"
)

// segmentPrefix and segmentSuffix bracket the firstSeq in a segment name.
const (
	segmentPrefix = "wal-"
	segmentSuffix = ".wal"
)

// SegmentName returns the file name for a segment starting at firstSeq.
func SegmentName(firstSeq base.Seq) string {
	return fmt.Sprintf("%s%020d%s", segmentPrefix, firstSeq, segmentSuffix)
}

// ParseSegmentName extracts the firstSeq from a segment file name.
func ParseSegmentName(name string) (base.Seq, bool) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
	if len(digits) == 0 {
		return 0, false
	}
	seq, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Segment identifies one WAL segment file on disk.
type Segment struct {
	Path     string
	FirstSeq base.Seq
}

// ListSegments returns the segments under dir in creation order. A missing
// directory yields an empty list.
func ListSegments(dir string) ([]Segment, error) {
	names, err := vfs.ListDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var segs []Segment
	for _, name := range names {
		seq, ok := ParseSegmentName(name)
		if !ok {
			continue
		}
		segs = append(segs, Segment{Path: filepath.Join(dir, name), FirstSeq: seq})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].FirstSeq < segs[j].FirstSeq })
	return segs, nil
}

// RemoveObsolete deletes every segment whose records have all been flushed,
// that is every segment followed by another segment whose firstSeq is
// <= flushedThrough+1. The newest segment is never removed. It returns the
// paths deleted.
func RemoveObsolete(dir string, flushedThrough base.Seq) ([]string, error) {
	segs, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for i := 0; i+1 < len(segs); i++ {
		if segs[i+1].FirstSeq > flushedThrough+1 {
			break
		}
		if err := os.Remove(segs[i].Path); err != nil {
			return removed, err
		}
		removed = append(removed, segs[i].Path)
	}
	if len(removed) > 0 {
		if err := vfs.SyncDir(dir); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
