package iterator

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalhour/loamkv/internal/base"
)

func rec(key string, value string, ts base.Timestamp) base.Record {
	r := base.Record{Key: []byte(key), Timestamp: ts}
	if value != "" {
		r.Value = []byte(value)
	}
	return r
}

func drain(t *testing.T, m *Merging) []base.Record {
	t.Helper()
	var out []base.Record
	for {
		r, ok := m.Next()
		if !ok {
			break
		}
		out = append(out, r)
	}
	require.NoError(t, m.Err())
	return out
}

func TestMergeSortedSources(t *testing.T) {
	a := NewSlice([]base.Record{rec("a", "1", 1), rec("c", "3", 1)})
	b := NewSlice([]base.Record{rec("b", "2", 1), rec("d", "4", 1)})

	out := drain(t, NewMerging(a, b))
	require.Len(t, out, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, want, string(out[i].Key))
	}
}

func TestNewestTimestampWinsPerKey(t *testing.T) {
	older := NewSlice([]base.Record{rec("k", "old", 5)})
	newer := NewSlice([]base.Record{rec("k", "new", 9)})

	out := drain(t, NewMerging(older, newer))
	require.Len(t, out, 1)
	assert.Equal(t, []byte("new"), out[0].Value)
	assert.Equal(t, base.Timestamp(9), out[0].Timestamp)
}

func TestEqualTimestampEarlierSourceWins(t *testing.T) {
	first := NewSlice([]base.Record{rec("k", "first", 7)})
	second := NewSlice([]base.Record{rec("k", "second", 7)})

	out := drain(t, NewMerging(first, second))
	require.Len(t, out, 1)
	assert.Equal(t, []byte("first"), out[0].Value)
}

func TestTombstonesSurviveMerge(t *testing.T) {
	live := NewSlice([]base.Record{rec("k", "v", 1)})
	deleted := NewSlice([]base.Record{rec("k", "", 2)})

	out := drain(t, NewMerging(live, deleted))
	require.Len(t, out, 1)
	assert.True(t, out[0].Tombstone())
}

func TestEmptySources(t *testing.T) {
	out := drain(t, NewMerging(NewSlice(nil), NewSlice(nil)))
	assert.Empty(t, out)

	out = drain(t, NewMerging())
	assert.Empty(t, out)
}

type failingSource struct {
	recs []base.Record
	err  error
}

func (f *failingSource) Next() (base.Record, bool) {
	if len(f.recs) == 0 {
		return base.Record{}, false
	}
	r := f.recs[0]
	f.recs = f.recs[1:]
	return r, true
}

func (f *failingSource) Err() error { return f.err }

func TestErrPropagates(t *testing.T) {
	src := &failingSource{err: errors.New("disk gone")}
	m := NewMerging(src)
	_, ok := m.Next()
	assert.False(t, ok)
	assert.Error(t, m.Err())
}
