// meta.go defines the SSTableMeta descriptor and the meta sidecar codec.
package table

import (
	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/checksum"
	"github.com/aalhour/loamkv/internal/encoding"
	"github.com/aalhour/loamkv/internal/filter"
	"github.com/aalhour/loamkv/internal/index"
)

// SSTableMeta describes one immutable table: its identity, file paths, key
// and timestamp bounds, and sizes. Descriptors are what the catalog stores
// and the manifest persists.
type SSTableMeta struct {
	ID       uint64         `json:"id"`
	Level    int            `json:"level"`
	DataPath string         `json:"data_path"`
	MetaPath string         `json:"meta_path"`
	MinKey   base.Key       `json:"min_key"`
	MaxKey   base.Key       `json:"max_key"`
	Count    uint64         `json:"count"`
	DataSize uint64         `json:"data_size"`
	TsMin    base.Timestamp `json:"ts_min"`
	TsMax    base.Timestamp `json:"ts_max"`
}

// footer is the fixed trailer of the meta sidecar.
type footer struct {
	minKey   base.Key
	maxKey   base.Key
	tsMin    base.Timestamp
	tsMax    base.Timestamp
	count    uint64
	dataSize uint64
	version  uint8
	checksum uint64
}

// appendFooter encodes f without its checksum field.
func appendFooterBody(dst []byte, f footer) []byte {
	dst = encoding.AppendBytes(dst, f.minKey)
	dst = encoding.AppendBytes(dst, f.maxKey)
	dst = encoding.AppendFixed64(dst, f.tsMin)
	dst = encoding.AppendFixed64(dst, f.tsMax)
	dst = encoding.AppendFixed64(dst, f.count)
	dst = encoding.AppendFixed64(dst, f.dataSize)
	return append(dst, f.version)
}

// encodeMeta builds the full meta sidecar blob: version header, then the
// length-prefixed bloom, index and footer sections. The footer checksum is
// XXH3 over bloomBlob || indexBlob || footer-body.
func encodeMeta(bloomBlob, indexBlob []byte, f footer) []byte {
	body := appendFooterBody(nil, f)

	sum := make([]byte, 0, len(bloomBlob)+len(indexBlob)+len(body))
	sum = append(sum, bloomBlob...)
	sum = append(sum, indexBlob...)
	sum = append(sum, body...)
	footerBlob := encoding.AppendFixed64(body, checksum.XXH3(sum))

	out := make([]byte, 0, 1+12+len(bloomBlob)+len(indexBlob)+len(footerBlob))
	out = append(out, FormatVersion)
	out = encoding.AppendBytes(out, bloomBlob)
	out = encoding.AppendBytes(out, indexBlob)
	out = encoding.AppendBytes(out, footerBlob)
	return out
}

// decodeMeta parses a meta sidecar blob and verifies its checksum.
func decodeMeta(blob []byte) (*filter.Bloom, *index.Sparse, footer, error) {
	var f footer
	if len(blob) < 1 {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, "meta sidecar empty")
	}
	if blob[0] != FormatVersion {
		return nil, nil, f, errors.Wrapf(base.ErrSSTable, "unsupported meta version %d", blob[0])
	}
	bloomBlob, rest, err := encoding.GetBytes(blob[1:])
	if err != nil {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, "meta sidecar bloom section")
	}
	indexBlob, rest, err := encoding.GetBytes(rest)
	if err != nil {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, "meta sidecar index section")
	}
	footerBlob, rest, err := encoding.GetBytes(rest)
	if err != nil || len(rest) != 0 {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, "meta sidecar footer section")
	}
	if len(footerBlob) < 8 {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, "meta sidecar footer too short")
	}

	body := footerBlob[:len(footerBlob)-8]
	stored := encoding.DecodeFixed64(footerBlob[len(footerBlob)-8:])
	sum := make([]byte, 0, len(bloomBlob)+len(indexBlob)+len(body))
	sum = append(sum, bloomBlob...)
	sum = append(sum, indexBlob...)
	sum = append(sum, body...)
	if computed := checksum.XXH3(sum); computed != stored {
		return nil, nil, f, errors.Wrapf(base.ErrSSTable, "meta sidecar checksum mismatch: stored 0x%016x computed 0x%016x", stored, computed)
	}

	minKey, body, err := encoding.GetBytes(body)
	if err != nil {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, "footer min key")
	}
	maxKey, body, err := encoding.GetBytes(body)
	if err != nil {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, "footer max key")
	}
	if len(body) != 8+8+8+8+1 {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, "footer fixed fields")
	}
	f.minKey = append([]byte(nil), minKey...)
	f.maxKey = append([]byte(nil), maxKey...)
	f.tsMin = encoding.DecodeFixed64(body[0:8])
	f.tsMax = encoding.DecodeFixed64(body[8:16])
	f.count = encoding.DecodeFixed64(body[16:24])
	f.dataSize = encoding.DecodeFixed64(body[24:32])
	f.version = body[32]
	f.checksum = stored

	bloom, err := filter.Deserialize(bloomBlob)
	if err != nil {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, err.Error())
	}
	idx, err := index.Deserialize(indexBlob)
	if err != nil {
		return nil, nil, f, errors.Wrap(base.ErrSSTable, err.Error())
	}
	return bloom, idx, f, nil
}
