// Package wal implements the loamkv write-ahead log: framed, CRC-checked,
// append-only segment files that make every acknowledged write replayable.
//
// Record Frame (little-endian):
//
//	+-----------+-------------+-----+---------------+-------+---------+--------+----------+
//	| magic(u32)| key_len(u64)| key | value_len(u64)| value | ts (u64)| op(u8) | crc(u32) |
//	+-----------+-------------+-----+---------------+-------+---------+--------+----------+
//
// The CRC-32 (IEEE) covers every byte of the frame before the crc field,
// magic included. A tombstone is op=1 with value_len=0.
//
// Segments are named wal-<firstSeq>.wal, zero-padded so lexical order equals
// creation order, and rotate once the active file exceeds the configured
// byte threshold. Replay walks all segments in order: a truncated trailing
// frame is silently dropped, a bad CRC or bad magic mid-segment terminates
// that segment and is reported, and an unreadable segment header is hard
// corruption.
package wal

import (
	"fmt"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/checksum"
	"github.com/aalhour/loamkv/internal/encoding"
)

// Magic identifies the start of every WAL frame.
// The value is embedded in the on-disk format and MUST NOT change.
const Magic uint32 = 0x4C534D01

// frameOverhead is the fixed frame size excluding key and value bytes:
// magic(4) + key_len(8) + value_len(8) + ts(8) + op(1) + crc(4).
const frameOverhead = 33

// FrameSize returns the encoded size of a frame for the given record.
func FrameSize(rec base.Record) int {
	return frameOverhead + len(rec.Key) + len(rec.Value)
}

// AppendFrame appends the encoded frame for rec to dst.
func AppendFrame(dst []byte, rec base.Record) []byte {
	start := len(dst)
	dst = encoding.AppendFixed32(dst, Magic)
	dst = encoding.AppendFixed64(dst, uint64(len(rec.Key)))
	dst = append(dst, rec.Key...)
	dst = encoding.AppendFixed64(dst, uint64(len(rec.Value)))
	dst = append(dst, rec.Value...)
	dst = encoding.AppendFixed64(dst, rec.Timestamp)
	dst = append(dst, byte(rec.Op()))
	crc := checksum.Value(dst[start:])
	return encoding.AppendFixed32(dst, crc)
}

// frameError describes why a frame failed to decode. Callers map it onto the
// replay policy: truncated tails are dropped, everything else is corruption.
type frameError struct {
	truncated bool
	msg       string
}

func (e *frameError) Error() string {
	return "wal: " + e.msg
}

func truncatedFrame(what string) error {
	return &frameError{truncated: true, msg: "truncated frame: " + what}
}

// IsTruncated reports whether err marks an incomplete frame at end of file.
func IsTruncated(err error) bool {
	fe, ok := err.(*frameError)
	return ok && fe.truncated
}

// DecodeFrame decodes one frame from the head of buf. It returns the decoded
// record and the number of bytes consumed. Errors are either truncation
// (frame runs past the end of buf, see IsTruncated) or corruption (bad magic
// or CRC mismatch).
func DecodeFrame(buf []byte) (base.Record, int, error) {
	var rec base.Record
	if len(buf) < 4 {
		return rec, 0, truncatedFrame("magic")
	}
	if m := encoding.DecodeFixed32(buf); m != Magic {
		return rec, 0, &frameError{msg: fmt.Sprintf("bad magic 0x%08x", m)}
	}
	pos := 4

	if len(buf) < pos+8 {
		return rec, 0, truncatedFrame("key length")
	}
	keyLen := encoding.DecodeFixed64(buf[pos:])
	pos += 8
	if uint64(len(buf)-pos) < keyLen {
		return rec, 0, truncatedFrame("key")
	}
	key := buf[pos : pos+int(keyLen)]
	pos += int(keyLen)

	if len(buf) < pos+8 {
		return rec, 0, truncatedFrame("value length")
	}
	valueLen := encoding.DecodeFixed64(buf[pos:])
	pos += 8
	if uint64(len(buf)-pos) < valueLen {
		return rec, 0, truncatedFrame("value")
	}
	value := buf[pos : pos+int(valueLen)]
	pos += int(valueLen)

	if len(buf) < pos+8+1+4 {
		return rec, 0, truncatedFrame("trailer")
	}
	ts := encoding.DecodeFixed64(buf[pos:])
	pos += 8
	op := base.Op(buf[pos])
	pos++

	stored := encoding.DecodeFixed32(buf[pos:])
	computed := checksum.Value(buf[:pos])
	pos += 4
	if stored != computed {
		return rec, 0, &frameError{msg: fmt.Sprintf("crc mismatch: stored 0x%08x computed 0x%08x", stored, computed)}
	}

	rec.Key = append([]byte(nil), key...)
	rec.Timestamp = ts
	if op == base.OpDelete {
		rec.Value = nil
	} else {
		rec.Value = append([]byte{}, value...)
	}
	return rec, pos, nil
}
