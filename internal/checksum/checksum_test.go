package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueKnownAnswer(t *testing.T) {
	// CRC-32 (IEEE) of "123456789" is the standard check value.
	assert.Equal(t, uint32(0xCBF43926), Value([]byte("123456789")))
	assert.Equal(t, uint32(0), Value(nil))
}

func TestExtendMatchesWhole(t *testing.T) {
	whole := Value([]byte("hello, world"))
	part := Value([]byte("hello, "))
	assert.Equal(t, whole, Extend(part, []byte("world")))
}

func TestValueDetectsBitFlip(t *testing.T) {
	data := []byte("the quick brown fox")
	before := Value(data)
	data[3] ^= 0x01
	assert.NotEqual(t, before, Value(data))
}

func TestXXH3Deterministic(t *testing.T) {
	a := XXH3([]byte("sidecar"))
	b := XXH3([]byte("sidecar"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, XXH3([]byte("sidecar!")))
}
