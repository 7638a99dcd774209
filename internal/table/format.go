// Package table implements SSTable reading and writing.
//
// An SSTable is an immutable pair of files: a data file of sorted framed
// records and a meta sidecar holding the bloom filter, the sparse index and
// a footer.
//
// Data File Format (little-endian):
//
//	+-------------+-----+---------------+-------+---------+--------+
//	| key_len(u64)| key | value_len(u64)| value | ts (u64)| op(u8) |
//	+-------------+-----+---------------+-------+---------+--------+ ...
//	| sentinel key_len = 0xFFFFFFFFFFFFFFFF (u64)                   |
//	+---------------------------------------------------------------+
//
// Meta Sidecar Format:
//
//	+------------+----------------------+----------------------+-----------------------+
//	| version(1) | bloom_len(u32)|bloom | index_len(u32)|index | footer_len(u32)|footer|
//	+------------+----------------------+----------------------+-----------------------+
//
// Footer fields, in order: min_key (u32-prefixed), max_key (u32-prefixed),
// ts_min(u64), ts_max(u64), count(u64), data_size(u64), format_version(u8),
// checksum(u64). The checksum is XXH3 over the bloom blob, the index blob
// and the footer bytes up to but excluding the checksum field.
package table

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/encoding"
)

// FormatVersion is the SSTable format version, written to both the meta
// header and the footer.
const FormatVersion = 1

// Sentinel is the key_len value that terminates the data file.
// The value is embedded in the on-disk format and MUST NOT change.
const Sentinel uint64 = 0xFFFFFFFFFFFFFFFF

// DataFileName returns the data file name for a table identity.
func DataFileName(level int, id uint64) string {
	return fmt.Sprintf("sst-%d-%d.data", level, id)
}

// MetaFileName returns the meta sidecar name for a table identity.
func MetaFileName(level int, id uint64) string {
	return fmt.Sprintf("sst-%d-%d.meta", level, id)
}

// IsTableFileName reports whether name looks like a table data or meta
// file produced by DataFileName or MetaFileName.
func IsTableFileName(name string) bool {
	var level int
	var id uint64
	var ext string
	if _, err := fmt.Sscanf(name, "sst-%d-%d.%s", &level, &id, &ext); err != nil {
		return false
	}
	return ext == "data" || ext == "meta"
}

// AppendDataFrame appends the encoded data frame for rec to dst.
func AppendDataFrame(dst []byte, rec base.Record) []byte {
	dst = encoding.AppendFixed64(dst, uint64(len(rec.Key)))
	dst = append(dst, rec.Key...)
	dst = encoding.AppendFixed64(dst, uint64(len(rec.Value)))
	dst = append(dst, rec.Value...)
	dst = encoding.AppendFixed64(dst, rec.Timestamp)
	return append(dst, byte(rec.Op()))
}

// AppendSentinel appends the end-of-data marker to dst.
func AppendSentinel(dst []byte) []byte {
	return encoding.AppendFixed64(dst, Sentinel)
}

// ReadDataFrame decodes the next data frame from br. done is true when the
// sentinel was read; the record is only valid when done is false. A short
// read anywhere inside a frame is a malformed table.
func ReadDataFrame(br *bufio.Reader) (rec base.Record, done bool, err error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return rec, false, errors.Wrap(base.ErrSSTable, "data file ends without sentinel")
	}
	keyLen := encoding.DecodeFixed64(lenBuf[:])
	if keyLen == Sentinel {
		return rec, true, nil
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(br, key); err != nil {
		return rec, false, errors.Wrap(base.ErrSSTable, "short key")
	}
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return rec, false, errors.Wrap(base.ErrSSTable, "short value length")
	}
	valueLen := encoding.DecodeFixed64(lenBuf[:])
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(br, value); err != nil {
		return rec, false, errors.Wrap(base.ErrSSTable, "short value")
	}
	var trailer [9]byte
	if _, err := io.ReadFull(br, trailer[:]); err != nil {
		return rec, false, errors.Wrap(base.ErrSSTable, "short frame trailer")
	}
	ts := encoding.DecodeFixed64(trailer[:8])
	op := base.Op(trailer[8])

	rec.Key = key
	rec.Timestamp = ts
	if op == base.OpDelete {
		rec.Value = nil
	} else {
		rec.Value = value
	}
	return rec, false, nil
}
