package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(keys ...string) *Sparse {
	s := New()
	for i, k := range keys {
		s.Add([]byte(k), uint64(i*100))
	}
	return s
}

func TestFindBlockOffset(t *testing.T) {
	s := buildIndex("b", "f", "m")

	tests := []struct {
		probe  string
		offset uint64
	}{
		{"a", 0},   // before first sampled key, scan from the start
		{"b", 0},   // exact first
		{"c", 0},   // between b and f
		{"f", 100}, // exact middle
		{"k", 100},
		{"m", 200}, // exact last
		{"z", 200}, // past the end
	}
	for _, tt := range tests {
		off, ok := s.FindBlockOffset([]byte(tt.probe))
		require.True(t, ok, "probe %q", tt.probe)
		assert.Equal(t, tt.offset, off, "probe %q", tt.probe)
	}
}

func TestFindBlockOffsetEmpty(t *testing.T) {
	_, ok := New().FindBlockOffset([]byte("a"))
	assert.False(t, ok)
}

func TestAddCopiesKey(t *testing.T) {
	s := New()
	key := []byte("mutable")
	s.Add(key, 0)
	key[0] = 'X'
	assert.Equal(t, []byte("mutable"), s.Entries()[0].Key)
}

func TestSerializeRoundTrip(t *testing.T) {
	s := buildIndex("alpha", "beta", "gamma")
	got, err := Deserialize(s.Serialize())
	require.NoError(t, err)
	require.Equal(t, s.Len(), got.Len())
	for i, e := range s.Entries() {
		assert.Equal(t, e.Key, got.Entries()[i].Key)
		assert.Equal(t, e.Offset, got.Entries()[i].Offset)
	}
}

func TestSerializeEmpty(t *testing.T) {
	got, err := Deserialize(New().Serialize())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestDeserializeErrors(t *testing.T) {
	_, err := Deserialize(nil)
	assert.ErrorIs(t, err, ErrInvalidBlob)

	blob := buildIndex("a").Serialize()
	blob[0] = 42
	_, err = Deserialize(blob)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	// Trailing garbage after the declared entries.
	blob = append(buildIndex("a").Serialize(), 0xEE)
	_, err = Deserialize(blob)
	assert.ErrorIs(t, err, ErrInvalidBlob)
}
