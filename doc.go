// Package loamkv is a single-node, embedded, persistent ordered key-value
// store built as a log-structured merge tree.
//
// Writes go through a CRC-protected write-ahead log, then a sorted in-memory
// memtable; full memtables flush to immutable SSTables organized into
// levels. Reads merge the memtable with the levels, pruned by per-table
// bloom filters and sparse indexes. Background compaction merges levels with
// last-writer-wins resolution and garbage-collects expired tombstones.
//
// Open returns the synchronous store: writes are applied to the memtable
// before returning. OpenAsync returns a store with WAL-first writes: a write
// is acknowledged once durable in the WAL and applied by a background
// worker; WaitForSeq provides a read-your-write fence.
//
// Basic usage:
//
//	store, err := loamkv.Open(loamkv.DefaultOptions("/var/lib/myapp"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	seq, err := store.Put([]byte("user:1"), []byte("ada"))
//	value, err := store.Get([]byte("user:1"))
package loamkv
