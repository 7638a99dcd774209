package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/table"
)

func tableMeta(id uint64, level int, minKey, maxKey string) table.SSTableMeta {
	return table.SSTableMeta{
		ID:       id,
		Level:    level,
		DataPath: table.DataFileName(level, id),
		MetaPath: table.MetaFileName(level, id),
		MinKey:   []byte(minKey),
		MaxKey:   []byte(maxKey),
		Count:    10,
		DataSize: 1000,
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalog(filepath.Join(t.TempDir(), "MANIFEST.json"), logging.Discard)
}

func TestLoadMissingStartsEmpty(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Load())
	assert.Empty(t, c.All())
	assert.Equal(t, uint64(1), c.NextID())
}

func TestNextIDMonotonic(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Load())
	a := c.NextID()
	b := c.NextID()
	assert.Equal(t, a+1, b)
}

func TestAddPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST.json")
	c := NewCatalog(path, logging.Discard)
	require.NoError(t, c.Load())
	require.NoError(t, c.Add(tableMeta(c.NextID(), 0, "a", "m")))
	require.NoError(t, c.Add(tableMeta(c.NextID(), 0, "n", "z")))

	reloaded := NewCatalog(path, logging.Discard)
	require.NoError(t, reloaded.Load())
	require.Len(t, reloaded.Level(0), 2)
	assert.Equal(t, []byte("a"), reloaded.Level(0)[0].MinKey)

	// next_id is past every allocated id.
	assert.Greater(t, reloaded.NextID(), reloaded.Level(0)[1].ID)
}

func TestReplaceSwapsLevels(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Load())
	in1 := tableMeta(c.NextID(), 0, "a", "f")
	in2 := tableMeta(c.NextID(), 0, "g", "z")
	require.NoError(t, c.Add(in1))
	require.NoError(t, c.Add(in2))

	out := tableMeta(c.NextID(), 1, "a", "z")
	require.NoError(t, c.Replace([]table.SSTableMeta{in1, in2}, []table.SSTableMeta{out}))

	assert.Empty(t, c.Level(0))
	require.Len(t, c.Level(1), 1)
	assert.Equal(t, out.ID, c.Level(1)[0].ID)
	assert.Equal(t, 1, c.MaxLevel())
	assert.Equal(t, []int{1}, c.Levels())
}

func TestLevelReturnsCopy(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Load())
	require.NoError(t, c.Add(tableMeta(c.NextID(), 0, "a", "z")))

	tables := c.Level(0)
	tables[0].ID = 9999
	assert.NotEqual(t, uint64(9999), c.Level(0)[0].ID)
}

func TestLoadFallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST.json")
	c := NewCatalog(path, logging.Discard)
	require.NoError(t, c.Load())
	require.NoError(t, c.Add(tableMeta(c.NextID(), 0, "a", "m")))
	// Second save moves the first manifest to the backup.
	require.NoError(t, c.Add(tableMeta(c.NextID(), 0, "n", "z")))

	require.NoError(t, os.WriteFile(path, []byte("{ this is not json"), 0o644))

	recovered := NewCatalog(path, logging.Discard)
	require.NoError(t, recovered.Load())
	require.Len(t, recovered.Level(0), 1)
	assert.Equal(t, []byte("a"), recovered.Level(0)[0].MinKey)
}

func TestLoadBothCorruptFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST.json")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(path+BackupSuffix, []byte("junk"), 0o644))

	c := NewCatalog(path, logging.Discard)
	assert.ErrorIs(t, c.Load(), base.ErrRecovery)
}
