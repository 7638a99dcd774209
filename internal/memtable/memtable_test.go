package memtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalhour/loamkv/internal/base"
)

func TestPutGet(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("v"), 10)

	value, ts, ok := m.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)
	assert.Equal(t, base.Timestamp(10), ts)

	_, _, ok = m.Get([]byte("absent"))
	assert.False(t, ok)
}

func TestOverwriteKeepsNewest(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("old"), 1)
	m.Put([]byte("k"), []byte("new"), 2)

	value, ts, ok := m.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("new"), value)
	assert.Equal(t, base.Timestamp(2), ts)
	assert.Equal(t, 1, m.Len())
}

func TestDeleteStoresTombstone(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("v"), 1)
	m.Delete([]byte("k"), 2)

	value, ts, ok := m.Get([]byte("k"))
	require.True(t, ok)
	assert.Nil(t, value)
	assert.Equal(t, base.Timestamp(2), ts)
}

func TestApproximateSizeMonotonic(t *testing.T) {
	m := New()
	assert.Zero(t, m.ApproximateSize())

	m.Put([]byte("k"), []byte("value"), 1)
	after := m.ApproximateSize()
	assert.Greater(t, after, uint64(0))

	m.Put([]byte("k"), []byte("v"), 2)
	assert.Greater(t, m.ApproximateSize(), after)
}

func TestItemsSorted(t *testing.T) {
	m := New()
	m.Put([]byte("c"), []byte("3"), 1)
	m.Put([]byte("a"), []byte("1"), 2)
	m.Delete([]byte("b"), 3)

	items := m.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []byte("a"), items[0].Key)
	assert.Equal(t, []byte("b"), items[1].Key)
	assert.True(t, items[1].Tombstone())
	assert.Equal(t, []byte("c"), items[2].Key)
}

func TestIterRange(t *testing.T) {
	m := New()
	for _, k := range []string{"a", "b", "c", "d"} {
		m.Put([]byte(k), []byte(k), 1)
	}

	keys := func(recs []base.Record) []string {
		var out []string
		for _, r := range recs {
			out = append(out, string(r.Key))
		}
		return out
	}

	assert.Equal(t, []string{"b", "c"}, keys(m.IterRange([]byte("b"), []byte("d"))))
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys(m.IterRange(nil, nil)))
	assert.Equal(t, []string{"c", "d"}, keys(m.IterRange([]byte("c"), nil)))
	assert.Equal(t, []string{"a"}, keys(m.IterRange(nil, []byte("b"))))
	assert.Empty(t, m.IterRange([]byte("x"), []byte("z")))
}
