// catalog.go implements the in-memory level catalog over the persisted
// manifest.
package manifest

import (
	"sort"
	"sync"

	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/table"
)

// Catalog is the authoritative per-level listing of live SSTables. All
// mutations persist the manifest before returning; a failed persist leaves
// the in-memory state rolled back.
type Catalog struct {
	path   string
	logger logging.Logger

	mu     sync.RWMutex
	levels map[int][]table.SSTableMeta
	nextID uint64
}

// NewCatalog creates a catalog persisting to path. Call Load before use.
func NewCatalog(path string, logger logging.Logger) *Catalog {
	return &Catalog{
		path:   path,
		logger: logging.OrDefault(logger),
		levels: map[int][]table.SSTableMeta{},
		nextID: 1,
	}
}

// Load reads the manifest (or its backup) into memory. A store that never
// flushed has no manifest and loads empty.
func (c *Catalog) Load() error {
	nextID, levels, err := load(c.path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID = nextID
	c.levels = levels
	total := 0
	for _, tables := range levels {
		total += len(tables)
	}
	c.logger.Infof(logging.NSManifest+"loaded manifest: %d tables, next id %d", total, nextID)
	return nil
}

// NextID returns a fresh monotonic table identity. The identity is durable
// only once the descriptor using it is committed by a mutation.
func (c *Catalog) NextID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

// Add registers one table and commits the manifest.
func (c *Catalog) Add(meta table.SSTableMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[meta.Level] = append(c.levels[meta.Level], meta)
	if err := save(c.path, c.nextID, c.levels); err != nil {
		tables := c.levels[meta.Level]
		c.levels[meta.Level] = tables[:len(tables)-1]
		return err
	}
	return nil
}

// Replace atomically removes the input tables and registers the outputs,
// committing the manifest once. Compaction uses it to swap level contents.
func (c *Catalog) Replace(inputs []table.SSTableMeta, outputs []table.SSTableMeta) error {
	removed := make(map[uint64]bool, len(inputs))
	for _, in := range inputs {
		removed[in.ID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.snapshotLocked()
	for level, tables := range c.levels {
		kept := tables[:0:0]
		for _, t := range tables {
			if !removed[t.ID] {
				kept = append(kept, t)
			}
		}
		c.levels[level] = kept
	}
	for _, out := range outputs {
		c.levels[out.Level] = append(c.levels[out.Level], out)
	}

	if err := save(c.path, c.nextID, c.levels); err != nil {
		c.levels = prev
		return err
	}
	return nil
}

// Level returns a copy of the descriptors at the given level, in
// registration order (oldest first).
func (c *Catalog) Level(level int) []table.SSTableMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]table.SSTableMeta(nil), c.levels[level]...)
}

// Levels returns the sorted list of levels that currently hold tables.
func (c *Catalog) Levels() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int, 0, len(c.levels))
	for level, tables := range c.levels {
		if len(tables) > 0 {
			out = append(out, level)
		}
	}
	sort.Ints(out)
	return out
}

// All returns a copy of every live descriptor across all levels.
func (c *Catalog) All() []table.SSTableMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []table.SSTableMeta
	for _, tables := range c.levels {
		out = append(out, tables...)
	}
	return out
}

// MaxLevel returns the deepest level currently holding tables, or 0.
func (c *Catalog) MaxLevel() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	max := 0
	for level, tables := range c.levels {
		if len(tables) > 0 && level > max {
			max = level
		}
	}
	return max
}

func (c *Catalog) snapshotLocked() map[int][]table.SSTableMeta {
	snap := make(map[int][]table.SSTableMeta, len(c.levels))
	for level, tables := range c.levels {
		snap[level] = append([]table.SSTableMeta(nil), tables...)
	}
	return snap
}
