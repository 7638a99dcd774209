package table

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalhour/loamkv/internal/base"
)

func buildTable(t *testing.T, dir string, id uint64, recs []base.Record) SSTableMeta {
	t.Helper()
	w, err := NewWriter(
		filepath.Join(dir, DataFileName(0, id)),
		filepath.Join(dir, MetaFileName(0, id)),
		WriterConfig{IndexInterval: 4, BloomFPRate: 0.01},
	)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, w.Add(rec))
	}
	meta, err := w.Finalize(0, id)
	require.NoError(t, err)
	return meta
}

func seqRecords(n int) []base.Record {
	recs := make([]base.Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, base.Record{
			Key:       []byte(fmt.Sprintf("key-%04d", i)),
			Value:     []byte(fmt.Sprintf("value-%d", i)),
			Timestamp: base.Timestamp(i + 1),
		})
	}
	return recs
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	recs := seqRecords(100)
	meta := buildTable(t, dir, 1, recs)

	assert.Equal(t, []byte("key-0000"), meta.MinKey)
	assert.Equal(t, []byte("key-0099"), meta.MaxKey)
	assert.Equal(t, uint64(100), meta.Count)

	r, err := Open(meta)
	require.NoError(t, err)
	defer r.Close()

	for _, want := range recs {
		value, ts, ok, err := r.Get(want.Key)
		require.NoError(t, err)
		require.True(t, ok, "key %s", want.Key)
		assert.Equal(t, want.Value, value)
		assert.Equal(t, want.Timestamp, ts)
	}

	_, _, ok, err := r.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTombstoneRoundTrip(t *testing.T) {
	dir := t.TempDir()
	meta := buildTable(t, dir, 1, []base.Record{
		{Key: []byte("dead"), Value: nil, Timestamp: 5},
		{Key: []byte("live"), Value: []byte("v"), Timestamp: 6},
	})

	r, err := Open(meta)
	require.NoError(t, err)
	defer r.Close()

	value, ts, ok, err := r.Get([]byte("dead"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, value)
	assert.Equal(t, base.Timestamp(5), ts)
}

func TestAddRejectsOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(
		filepath.Join(dir, DataFileName(0, 1)),
		filepath.Join(dir, MetaFileName(0, 1)),
		WriterConfig{},
	)
	require.NoError(t, err)
	defer w.Abort()

	require.NoError(t, w.Add(base.Record{Key: []byte("b"), Value: []byte("1"), Timestamp: 1}))
	err = w.Add(base.Record{Key: []byte("a"), Value: []byte("2"), Timestamp: 2})
	assert.ErrorIs(t, err, base.ErrSSTable)
}

func TestFinalizeEmptyFails(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(
		filepath.Join(dir, DataFileName(0, 1)),
		filepath.Join(dir, MetaFileName(0, 1)),
		WriterConfig{},
	)
	require.NoError(t, err)
	defer w.Abort()

	_, err = w.Finalize(0, 1)
	assert.ErrorIs(t, err, base.ErrSSTable)
}

func TestAbortLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(
		filepath.Join(dir, DataFileName(0, 1)),
		filepath.Join(dir, MetaFileName(0, 1)),
		WriterConfig{},
	)
	require.NoError(t, err)
	require.NoError(t, w.Add(base.Record{Key: []byte("a"), Value: []byte("1"), Timestamp: 1}))
	w.Abort()

	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestIterRangeBounds(t *testing.T) {
	dir := t.TempDir()
	meta := buildTable(t, dir, 1, seqRecords(20))

	r, err := Open(meta)
	require.NoError(t, err)
	defer r.Close()

	it := r.IterRange([]byte("key-0005"), []byte("key-0010"))
	var keys []string
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		keys = append(keys, string(rec.Key))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"key-0005", "key-0006", "key-0007", "key-0008", "key-0009"}, keys)

	it = r.IterRange(nil, nil)
	n := 0
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		n++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 20, n)
}

func TestGetOutsideBounds(t *testing.T) {
	dir := t.TempDir()
	meta := buildTable(t, dir, 1, seqRecords(10))

	r, err := Open(meta)
	require.NoError(t, err)
	defer r.Close()

	for _, key := range []string{"aaa", "zzz"} {
		_, _, ok, err := r.Get([]byte(key))
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestSidecarCorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	meta := buildTable(t, dir, 1, seqRecords(10))

	blob, err := os.ReadFile(meta.MetaPath)
	require.NoError(t, err)
	blob[len(blob)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(meta.MetaPath, blob, 0o644))

	_, err = Open(meta)
	assert.ErrorIs(t, err, base.ErrSSTable)
}

func TestOpenBackfillsMetaFromFooter(t *testing.T) {
	dir := t.TempDir()
	built := buildTable(t, dir, 1, seqRecords(10))

	r, err := Open(SSTableMeta{DataPath: built.DataPath, MetaPath: built.MetaPath})
	require.NoError(t, err)
	defer r.Close()

	meta := r.Meta()
	assert.Equal(t, built.MinKey, meta.MinKey)
	assert.Equal(t, built.MaxKey, meta.MaxKey)
	assert.Equal(t, built.Count, meta.Count)
	assert.Equal(t, built.DataSize, meta.DataSize)
}

func TestIsTableFileName(t *testing.T) {
	assert.True(t, IsTableFileName(DataFileName(0, 7)))
	assert.True(t, IsTableFileName(MetaFileName(3, 12)))
	assert.False(t, IsTableFileName("wal-1.wal"))
	assert.False(t, IsTableFileName("MANIFEST.json"))
	assert.False(t, IsTableFileName("sst-1-2.tmp"))
}
