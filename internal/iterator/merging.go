// Package iterator implements the k-way merging iterator shared by the
// compactor and the range-read path.
//
// Sources are sorted streams of records. The merge yields at most one record
// per distinct key in ascending key order: among sources holding the same
// key, the record with the greatest timestamp wins; equal timestamps are
// broken in favor of the earlier source, so callers order their sources
// newest-first.
package iterator

import (
	"container/heap"

	"github.com/aalhour/loamkv/internal/base"
)

// Source is a sorted stream of records. Next returns ok=false at exhaustion
// or on error; Err distinguishes the two.
type Source interface {
	Next() (base.Record, bool)
	Err() error
}

// sliceSource adapts an in-memory sorted record slice.
type sliceSource struct {
	recs []base.Record
	pos  int
}

// NewSlice wraps records, which must already be sorted by key, as a Source.
func NewSlice(recs []base.Record) Source {
	return &sliceSource{recs: recs}
}

func (s *sliceSource) Next() (base.Record, bool) {
	if s.pos >= len(s.recs) {
		return base.Record{}, false
	}
	rec := s.recs[s.pos]
	s.pos++
	return rec, true
}

func (s *sliceSource) Err() error {
	return nil
}

// mergeItem is a heap entry: a source's current record plus its priority.
type mergeItem struct {
	rec base.Record
	src int
}

// mergeHeap orders by (key asc, timestamp desc, source index asc).
type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := base.Compare(h[i].rec.Key, h[j].rec.Key); c != 0 {
		return c < 0
	}
	if h[i].rec.Timestamp != h[j].rec.Timestamp {
		return h[i].rec.Timestamp > h[j].rec.Timestamp
	}
	return h[i].src < h[j].src
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merging is the k-way merge. Tombstones are passed through; dropping them
// is the caller's policy.
type Merging struct {
	sources []Source
	heap    mergeHeap
	err     error
}

// NewMerging builds a merge over sources, newest first. Sources are primed
// immediately.
func NewMerging(sources ...Source) *Merging {
	m := &Merging{sources: sources}
	for i := range sources {
		m.advance(i)
	}
	heap.Init(&m.heap)
	return m
}

func (m *Merging) advance(src int) {
	rec, ok := m.sources[src].Next()
	if !ok {
		if err := m.sources[src].Err(); err != nil && m.err == nil {
			m.err = err
		}
		return
	}
	m.heap = append(m.heap, mergeItem{rec: rec, src: src})
}

// Next returns the winning record for the next distinct key. ok is false at
// exhaustion or after an error; check Err then.
func (m *Merging) Next() (base.Record, bool) {
	if m.err != nil || m.heap.Len() == 0 {
		return base.Record{}, false
	}

	winner := heap.Pop(&m.heap).(mergeItem)
	m.pushNext(winner.src)

	// Discard shadowed records for the same key.
	for m.heap.Len() > 0 && base.Compare(m.heap[0].rec.Key, winner.rec.Key) == 0 {
		loser := heap.Pop(&m.heap).(mergeItem)
		m.pushNext(loser.src)
	}

	if m.err != nil {
		return base.Record{}, false
	}
	return winner.rec, true
}

func (m *Merging) pushNext(src int) {
	rec, ok := m.sources[src].Next()
	if !ok {
		if err := m.sources[src].Err(); err != nil && m.err == nil {
			m.err = err
		}
		return
	}
	heap.Push(&m.heap, mergeItem{rec: rec, src: src})
}

// Err returns the first source error the merge hit, if any.
func (m *Merging) Err() error {
	return m.err
}
