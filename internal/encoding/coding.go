// Package encoding provides binary encoding/decoding primitives for the
// loamkv on-disk formats.
//
// All multi-byte integers are encoded in little-endian format. The WAL frame,
// SSTable data frame, bloom filter blob and meta sidecar all build on these
// helpers.
package encoding

import (
	"encoding/binary"
	"errors"
)

// ErrBufferTooSmall is returned when a decode source does not contain enough
// bytes for the requested width.
var ErrBufferTooSmall = errors.New("encoding: buffer too small")

// EncodeFixed32 encodes a uint32 into a 4-byte little-endian buffer.
// REQUIRES: dst has at least 4 bytes.
func EncodeFixed32(dst []byte, value uint32) {
	binary.LittleEndian.PutUint32(dst, value)
}

// DecodeFixed32 decodes a uint32 from a 4-byte little-endian buffer.
// REQUIRES: src has at least 4 bytes.
func DecodeFixed32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

// EncodeFixed64 encodes a uint64 into an 8-byte little-endian buffer.
// REQUIRES: dst has at least 8 bytes.
func EncodeFixed64(dst []byte, value uint64) {
	binary.LittleEndian.PutUint64(dst, value)
}

// DecodeFixed64 decodes a uint64 from an 8-byte little-endian buffer.
// REQUIRES: src has at least 8 bytes.
func DecodeFixed64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// AppendFixed32 appends a uint32 in little-endian order to dst.
func AppendFixed32(dst []byte, value uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, value)
}

// AppendFixed64 appends a uint64 in little-endian order to dst.
func AppendFixed64(dst []byte, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, value)
}

// GetFixed32 decodes a uint32 from src and returns the remaining bytes.
func GetFixed32(src []byte) (uint32, []byte, error) {
	if len(src) < 4 {
		return 0, nil, ErrBufferTooSmall
	}
	return binary.LittleEndian.Uint32(src), src[4:], nil
}

// GetFixed64 decodes a uint64 from src and returns the remaining bytes.
func GetFixed64(src []byte) (uint64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, ErrBufferTooSmall
	}
	return binary.LittleEndian.Uint64(src), src[8:], nil
}

// GetBytes slices a length-prefixed byte string (u32 length) from src and
// returns the remaining bytes.
func GetBytes(src []byte) ([]byte, []byte, error) {
	n, rest, err := GetFixed32(src)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < uint64(n) {
		return nil, nil, ErrBufferTooSmall
	}
	return rest[:n], rest[n:], nil
}

// AppendBytes appends a u32 length prefix followed by b to dst.
func AppendBytes(dst, b []byte) []byte {
	dst = AppendFixed32(dst, uint32(len(b)))
	return append(dst, b...)
}
