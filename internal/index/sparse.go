// Package index implements the sparse block index carried by every SSTable
// meta sidecar.
//
// The index samples the first key of every block (every Nth record during the
// table write) together with the file offset of the frame that starts the
// block. Lookups return the offset of the greatest sampled key <= the probe
// key, so a reader seeks there and linearly scans at most one block.
//
// Serialized Blob Format (self-describing, little-endian):
//
//	+------------+-------------+-------------------------------------+
//	| version(1) | count (u32) | count * (key_len u32 | key | off u64)|
//	+------------+-------------+-------------------------------------+
package index

import (
	"errors"
	"sort"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/encoding"
)

// FormatVersion is the sparse index blob format version.
const FormatVersion = 1

var (
	// ErrInvalidBlob indicates an index blob that is too short or malformed.
	ErrInvalidBlob = errors.New("index: invalid sparse index blob")

	// ErrUnsupportedVersion indicates an unknown index blob format version.
	ErrUnsupportedVersion = errors.New("index: unsupported index version")
)

// Entry is a single sampled key and the file offset of its data frame.
type Entry struct {
	Key    base.Key
	Offset uint64
}

// Sparse is a sorted sparse block index. Entries are appended in ascending
// key order during the table write and binary-searched at read time.
type Sparse struct {
	entries []Entry
}

// New returns an empty sparse index.
func New() *Sparse {
	return &Sparse{}
}

// Add records a sampled key and the offset of the frame that starts its
// block. Keys MUST be added in ascending order; the key is copied.
func (s *Sparse) Add(key base.Key, offset uint64) {
	s.entries = append(s.entries, Entry{
		Key:    append([]byte(nil), key...),
		Offset: offset,
	})
}

// Len returns the number of sampled entries.
func (s *Sparse) Len() int {
	return len(s.entries)
}

// Entries returns the sampled entries in ascending key order. The returned
// slice is owned by the index and must not be mutated.
func (s *Sparse) Entries() []Entry {
	return s.entries
}

// FindBlockOffset returns the offset of the greatest sampled key <= key. If
// key sorts before the first sampled key, the first-block offset is returned
// so the caller can scan from the start of the file. ok is false only when
// the index is empty.
func (s *Sparse) FindBlockOffset(key base.Key) (offset uint64, ok bool) {
	if len(s.entries) == 0 {
		return 0, false
	}
	// First entry with Key > key; the predecessor is the block to scan.
	i := sort.Search(len(s.entries), func(i int) bool {
		return base.Compare(s.entries[i].Key, key) > 0
	})
	if i == 0 {
		return s.entries[0].Offset, true
	}
	return s.entries[i-1].Offset, true
}

// Serialize encodes the index as a self-describing blob.
func (s *Sparse) Serialize() []byte {
	size := 1 + 4
	for _, e := range s.entries {
		size += 4 + len(e.Key) + 8
	}
	out := make([]byte, 0, size)
	out = append(out, FormatVersion)
	out = encoding.AppendFixed32(out, uint32(len(s.entries)))
	for _, e := range s.entries {
		out = encoding.AppendBytes(out, e.Key)
		out = encoding.AppendFixed64(out, e.Offset)
	}
	return out
}

// Deserialize decodes a blob produced by Serialize.
func Deserialize(blob []byte) (*Sparse, error) {
	if len(blob) < 5 {
		return nil, ErrInvalidBlob
	}
	if blob[0] != FormatVersion {
		return nil, ErrUnsupportedVersion
	}
	count := encoding.DecodeFixed32(blob[1:5])
	rest := blob[5:]
	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, r, err := encoding.GetBytes(rest)
		if err != nil {
			return nil, ErrInvalidBlob
		}
		off, r2, err := encoding.GetFixed64(r)
		if err != nil {
			return nil, ErrInvalidBlob
		}
		entries = append(entries, Entry{
			Key:    append([]byte(nil), key...),
			Offset: off,
		})
		rest = r2
	}
	if len(rest) != 0 {
		return nil, ErrInvalidBlob
	}
	return &Sparse{entries: entries}, nil
}
