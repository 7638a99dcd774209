// Package checksum provides the two checksums used on disk: CRC-32 (IEEE)
// for WAL frames and XXH3 for SSTable meta sidecars.
package checksum

import (
	"hash/crc32"

	"github.com/zeebo/xxh3"
)

// Value returns the CRC-32 (IEEE) of data.
func Value(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Extend continues a CRC-32 with more data.
func Extend(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, data)
}

// XXH3 returns the 64-bit XXH3 hash of data.
func XXH3(data []byte) uint64 {
	return xxh3.Hash(data)
}
