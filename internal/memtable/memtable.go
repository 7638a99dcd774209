// Package memtable implements the in-memory sorted write buffer.
//
// The memtable maps each key to its newest (value, timestamp) pair; a write
// replaces the stored pair unless the stored timestamp is newer. A nil value is a tombstone and is kept so a
// deletion can shadow older SSTable versions until it is flushed. Entries are
// held in a skiplist ordered by raw key bytes, so in-order iteration and
// range scans need no sort step.
//
// ApproximateSize sums key length, value length and a fixed per-entry
// overhead; it never decreases under insertion.
package memtable

import (
	"github.com/huandu/skiplist"

	"github.com/aalhour/loamkv/internal/base"
)

// entryOverhead approximates the bookkeeping cost per resident entry:
// skiplist node, tower pointers and the timestamp.
const entryOverhead = 64

// entry is the stored (value, timestamp) pair. Value nil marks a tombstone.
type entry struct {
	value base.Value
	ts    base.Timestamp
}

// Memtable is a sorted in-memory buffer of the newest write per key.
// It is NOT safe for concurrent use; the store serializes access under its
// own lock.
type Memtable struct {
	list *skiplist.SkipList
	size uint64
}

// New creates an empty memtable.
func New() *Memtable {
	return &Memtable{
		list: skiplist.New(skiplist.String),
	}
}

// Put records key -> (value, ts), replacing any older entry for key.
func (m *Memtable) Put(key base.Key, value base.Value, ts base.Timestamp) {
	m.set(key, value, ts)
}

// Delete records a tombstone for key at ts.
func (m *Memtable) Delete(key base.Key, ts base.Timestamp) {
	m.set(key, nil, ts)
}

func (m *Memtable) set(key base.Key, value base.Value, ts base.Timestamp) {
	if elem := m.list.Get(string(key)); elem != nil && elem.Value.(entry).ts > ts {
		return
	}
	m.list.Set(string(key), entry{value: value, ts: ts})
	m.size += uint64(len(key)) + uint64(len(value)) + entryOverhead
}

// Get returns the stored (value, ts) pair for key. ok is false when the key
// is absent; a present tombstone returns value == nil with ok == true.
func (m *Memtable) Get(key base.Key) (value base.Value, ts base.Timestamp, ok bool) {
	elem := m.list.Get(string(key))
	if elem == nil {
		return nil, 0, false
	}
	e := elem.Value.(entry)
	return e.value, e.ts, true
}

// Len returns the number of resident entries.
func (m *Memtable) Len() int {
	return m.list.Len()
}

// ApproximateSize returns the approximate resident byte size. Monotonic
// under insertion: overwrites add, they never subtract.
func (m *Memtable) ApproximateSize() uint64 {
	return m.size
}

// Items returns all resident records in ascending key order. Tombstones are
// included with Value == nil.
func (m *Memtable) Items() []base.Record {
	out := make([]base.Record, 0, m.list.Len())
	for elem := m.list.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(entry)
		out = append(out, base.Record{
			Key:       []byte(elem.Key().(string)),
			Value:     e.value,
			Timestamp: e.ts,
		})
	}
	return out
}

// IterRange returns the resident records with lo <= key < hi in ascending
// key order. A nil bound leaves that end open. Tombstones are included.
func (m *Memtable) IterRange(lo, hi base.Key) []base.Record {
	var elem *skiplist.Element
	if lo == nil {
		elem = m.list.Front()
	} else {
		elem = m.list.Find(string(lo))
	}
	var out []base.Record
	for ; elem != nil; elem = elem.Next() {
		key := []byte(elem.Key().(string))
		if hi != nil && base.Compare(key, hi) >= 0 {
			break
		}
		e := elem.Value.(entry)
		out = append(out, base.Record{Key: key, Value: e.value, Timestamp: e.ts})
	}
	return out
}
