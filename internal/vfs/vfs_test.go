package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")

	require.NoError(t, WriteFileAtomic(path, []byte("v1"), 0o644))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Overwrite replaces the previous contents.
	require.NoError(t, WriteFileAtomic(path, []byte("v2"), 0o644))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	// No temp files remain.
	names, err := ListDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"blob"}, names)
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, Rename(src, dst))
	assert.False(t, Exists(src))
	assert.True(t, Exists(dst))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(filepath.Join(dir, "missing")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "here"), nil, 0o644))
	assert.True(t, Exists(filepath.Join(dir, "here")))
}

func TestListDirSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	names, err := ListDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l1, err := Lock(path)
	require.NoError(t, err)

	_, err = Lock(path)
	assert.Error(t, err)

	require.NoError(t, l1.Close())
	l2, err := Lock(path)
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}
