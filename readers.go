// readers.go caches open SSTable readers keyed by table id.
package loamkv

import (
	"sync"

	"github.com/aalhour/loamkv/internal/table"
)

// readerCache keeps one open Reader per live table so the read path does
// not reopen files on every lookup. Readers for compacted-away tables are
// dropped when the catalog swap completes.
type readerCache struct {
	mu      sync.Mutex
	readers map[uint64]*table.Reader
}

func newReaderCache() *readerCache {
	return &readerCache{readers: make(map[uint64]*table.Reader)}
}

// get returns the cached reader for meta, opening it on first use.
func (c *readerCache) get(meta table.SSTableMeta) (*table.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.readers[meta.ID]; ok {
		return r, nil
	}
	r, err := table.Open(meta)
	if err != nil {
		return nil, err
	}
	c.readers[meta.ID] = r
	return r, nil
}

// drop closes and forgets the readers for the given table ids.
func (c *readerCache) drop(ids []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if r, ok := c.readers[id]; ok {
			_ = r.Close()
			delete(c.readers, id)
		}
	}
}

func (c *readerCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, r := range c.readers {
		_ = r.Close()
		delete(c.readers, id)
	}
}
