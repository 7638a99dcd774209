// Package filter implements the Bloom filter carried by every SSTable meta
// sidecar.
//
// Parameters are derived from the expected element count n and the target
// false-positive rate p:
//
//	m = ceil(-n * ln(p) / (ln 2)^2)   bits in the array
//	k = round((m / n) * ln 2)         probes per key
//
// Hashing uses SHA-256 split into two 64-bit lanes h1 and h2; probe i sets or
// tests bit (h1 + i*h2) mod m. False negatives are impossible; the observed
// false-positive rate over representative data stays within 2*p.
//
// Serialized Blob Format (self-describing, little-endian):
//
//	+------------+--------+--------+-------------------+
//	| version(1) | m (u64)| k (u32)| bitmap (ceil(m/8))|
//	+------------+--------+--------+-------------------+
package filter

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"

	"github.com/aalhour/loamkv/internal/encoding"
)

// FormatVersion is the bloom blob format version.
const FormatVersion = 1

// headerLen is version(1) + m(8) + k(4).
const headerLen = 13

var (
	// ErrInvalidBlob indicates a bloom blob that is too short or malformed.
	ErrInvalidBlob = errors.New("filter: invalid bloom blob")

	// ErrUnsupportedVersion indicates an unknown bloom blob format version.
	ErrUnsupportedVersion = errors.New("filter: unsupported bloom version")
)

// Bloom is a fixed-size probabilistic membership filter.
type Bloom struct {
	m    uint64 // number of bits
	k    uint32 // number of probes per key
	bits []byte
}

// New creates a filter sized for expectedElements insertions at the target
// false-positive rate. expectedElements is clamped to at least 1; fpRate must
// be in (0, 1).
func New(expectedElements int, fpRate float64) *Bloom {
	if expectedElements < 1 {
		expectedElements = 1
	}
	n := float64(expectedElements)

	ln2 := math.Ln2
	m := uint64(math.Ceil(-n * math.Log(fpRate) / (ln2 * ln2)))
	if m < 1 {
		m = 1
	}
	k := uint32(math.Round(float64(m) / n * ln2))
	if k < 1 {
		k = 1
	}

	return &Bloom{
		m:    m,
		k:    k,
		bits: make([]byte, (m+7)/8),
	}
}

// hashLanes returns the two 64-bit lanes of the key's SHA-256 digest.
func hashLanes(key []byte) (uint64, uint64) {
	digest := sha256.Sum256(key)
	h1 := binary.LittleEndian.Uint64(digest[0:8])
	h2 := binary.LittleEndian.Uint64(digest[8:16])
	return h1, h2
}

// Add sets all k probe bits for key.
func (b *Bloom) Add(key []byte) {
	h1, h2 := hashLanes(key)
	for i := uint64(0); i < uint64(b.k); i++ {
		pos := (h1 + i*h2) % b.m
		b.bits[pos>>3] |= 1 << (pos & 7)
	}
}

// MayContain reports whether key may be in the set. A false return means the
// key is definitely absent.
func (b *Bloom) MayContain(key []byte) bool {
	h1, h2 := hashLanes(key)
	for i := uint64(0); i < uint64(b.k); i++ {
		pos := (h1 + i*h2) % b.m
		if b.bits[pos>>3]&(1<<(pos&7)) == 0 {
			return false
		}
	}
	return true
}

// Bits returns the bit-array size m.
func (b *Bloom) Bits() uint64 {
	return b.m
}

// Probes returns the probe count k.
func (b *Bloom) Probes() uint32 {
	return b.k
}

// Serialize encodes the filter as a self-describing blob.
func (b *Bloom) Serialize() []byte {
	out := make([]byte, 0, headerLen+len(b.bits))
	out = append(out, FormatVersion)
	out = encoding.AppendFixed64(out, b.m)
	out = encoding.AppendFixed32(out, b.k)
	return append(out, b.bits...)
}

// Deserialize decodes a blob produced by Serialize. MayContain answers are
// preserved exactly across a round trip.
func Deserialize(blob []byte) (*Bloom, error) {
	if len(blob) < headerLen {
		return nil, ErrInvalidBlob
	}
	if blob[0] != FormatVersion {
		return nil, ErrUnsupportedVersion
	}
	m := encoding.DecodeFixed64(blob[1:9])
	k := encoding.DecodeFixed32(blob[9:13])
	bits := blob[headerLen:]
	if m == 0 || k == 0 || uint64(len(bits)) != (m+7)/8 {
		return nil, ErrInvalidBlob
	}
	return &Bloom{
		m:    m,
		k:    k,
		bits: append([]byte(nil), bits...),
	}, nil
}
