// Package manifest implements the level catalog and its persistence.
//
// The catalog maps each level to an ordered list of SSTable descriptors. All
// mutations happen in memory under an exclusive lock and are then committed
// by rewriting the manifest file atomically: serialize to a temporary file,
// fsync, move the prior manifest to its .bak sibling, rename the temporary
// over the live path. Either the old manifest or the new one is always
// recoverable; a mutation never leaves a half-written catalog behind.
//
// The manifest document is self-describing JSON:
//
//	{
//	  "format_version": 1,
//	  "next_id": 7,
//	  "levels": {
//	    "0": [ {id, level, data_path, meta_path, min_key, max_key,
//	            count, data_size, ts_min, ts_max}, ... ],
//	    ...
//	  }
//	}
package manifest

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/table"
	"github.com/aalhour/loamkv/internal/vfs"
)

// FormatVersion is the manifest document version.
const FormatVersion = 1

// BackupSuffix is appended to the live manifest path for the backup copy.
const BackupSuffix = ".bak"

// document is the serialized manifest shape.
type document struct {
	FormatVersion int                          `json:"format_version"`
	NextID        uint64                       `json:"next_id"`
	Levels        map[string][]table.SSTableMeta `json:"levels"`
}

// encode serializes the catalog state to manifest JSON.
func encode(nextID uint64, levels map[int][]table.SSTableMeta) ([]byte, error) {
	doc := document{
		FormatVersion: FormatVersion,
		NextID:        nextID,
		Levels:        make(map[string][]table.SSTableMeta, len(levels)),
	}
	for level, tables := range levels {
		if len(tables) == 0 {
			continue
		}
		doc.Levels[strconv.Itoa(level)] = tables
	}
	return json.MarshalIndent(doc, "", "  ")
}

// decode parses manifest JSON back into catalog state.
func decode(data []byte) (uint64, map[int][]table.SSTableMeta, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, nil, err
	}
	if doc.FormatVersion != FormatVersion {
		return 0, nil, errors.Errorf("unsupported manifest version %d", doc.FormatVersion)
	}
	levels := make(map[int][]table.SSTableMeta, len(doc.Levels))
	for key, tables := range doc.Levels {
		level, err := strconv.Atoi(key)
		if err != nil {
			return 0, nil, errors.Errorf("bad level key %q", key)
		}
		levels[level] = tables
	}
	return doc.NextID, levels, nil
}

// save commits the given state: temporary write, fsync, prior manifest moved
// to .bak, rename over live.
func save(path string, nextID uint64, levels map[int][]table.SSTableMeta) error {
	data, err := encode(nextID, levels)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if vfs.Exists(path) {
		if err := os.Rename(path, path+BackupSuffix); err != nil {
			_ = os.Remove(tmp)
			return err
		}
	}
	return vfs.Rename(tmp, path)
}

// load reads the live manifest, falling back to the .bak copy when the live
// one is missing or unparseable. Missing both yields empty state; a parse
// failure on both wraps ErrRecovery.
func load(path string) (uint64, map[int][]table.SSTableMeta, error) {
	liveData, liveErr := os.ReadFile(path)
	if liveErr == nil {
		nextID, levels, err := decode(liveData)
		if err == nil {
			return nextID, levels, nil
		}
		liveErr = err
	}

	bakData, bakErr := os.ReadFile(path + BackupSuffix)
	if bakErr == nil {
		nextID, levels, err := decode(bakData)
		if err == nil {
			return nextID, levels, nil
		}
		bakErr = err
	}

	if os.IsNotExist(liveErr) && os.IsNotExist(bakErr) {
		return 1, map[int][]table.SSTableMeta{}, nil
	}
	return 0, nil, errors.Wrapf(base.ErrRecovery, "manifest unreadable: live: %v; backup: %v", liveErr, bakErr)
}
