package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoFalseNegatives(t *testing.T) {
	b := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		b.Add([]byte(fmt.Sprintf("key-%04d", i)))
	}
	for i := 0; i < 1000; i++ {
		assert.True(t, b.MayContain([]byte(fmt.Sprintf("key-%04d", i))))
	}
}

func TestFalsePositiveRate(t *testing.T) {
	b := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		b.Add([]byte(fmt.Sprintf("key-%04d", i)))
	}
	falsePositives := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if b.MayContain([]byte(fmt.Sprintf("absent-%05d", i))) {
			falsePositives++
		}
	}
	// Target is 1%, allow generous slack for hash variance.
	assert.Less(t, falsePositives, probes/20)
}

func TestEmptyFilter(t *testing.T) {
	b := New(100, 0.01)
	assert.False(t, b.MayContain([]byte("anything")))
}

func TestSerializeRoundTrip(t *testing.T) {
	b := New(500, 0.05)
	keys := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc"), {0x00, 0xFF}}
	for _, k := range keys {
		b.Add(k)
	}

	got, err := Deserialize(b.Serialize())
	require.NoError(t, err)
	assert.Equal(t, b.Bits(), got.Bits())
	assert.Equal(t, b.Probes(), got.Probes())
	for _, k := range keys {
		assert.True(t, got.MayContain(k))
	}
}

func TestDeserializeErrors(t *testing.T) {
	_, err := Deserialize([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidBlob)

	blob := New(10, 0.01).Serialize()
	blob[0] = 99
	_, err = Deserialize(blob)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestTinyExpectedElements(t *testing.T) {
	b := New(0, 0.01)
	b.Add([]byte("solo"))
	assert.True(t, b.MayContain([]byte("solo")))
}
