package main

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/manifest"
	"github.com/aalhour/loamkv/internal/table"
	"github.com/aalhour/loamkv/internal/wal"
)

type printingReporter struct{}

func (printingReporter) Corruption(path string, offset int64, err error) {
	fmt.Printf("!! corruption in %s at offset %d: %v\n", filepath.Base(path), offset, err)
}

func dumpWAL(path string, useHex bool, limit int) error {
	firstSeq, ok := wal.ParseSegmentName(filepath.Base(path))
	if !ok {
		return errors.Errorf("%s is not a WAL segment name", filepath.Base(path))
	}
	entries, err := wal.ReplaySegment(path, firstSeq, printingReporter{})
	if err != nil {
		return err
	}
	for i, e := range entries {
		if limit > 0 && i >= limit {
			fmt.Printf("... truncated at %d records\n", limit)
			break
		}
		fmt.Printf("seq=%d ts=%d %s\n", e.Seq, e.Record.Timestamp, formatRecord(e.Record, useHex))
	}
	fmt.Printf("%d records, first sequence %d\n", len(entries), firstSeq)
	return nil
}

func dumpSST(metaPath string, useHex bool, limit int, footerOnly bool) error {
	if !strings.HasSuffix(metaPath, ".meta") {
		return errors.Errorf("%s is not a table meta file", filepath.Base(metaPath))
	}
	r, err := table.Open(table.SSTableMeta{
		MetaPath: metaPath,
		DataPath: strings.TrimSuffix(metaPath, ".meta") + ".data",
	})
	if err != nil {
		return err
	}
	defer r.Close()

	meta := r.Meta()
	fmt.Printf("min_key=%s max_key=%s\n", formatBytes(meta.MinKey, useHex), formatBytes(meta.MaxKey, useHex))
	fmt.Printf("count=%d data_size=%d ts_min=%d ts_max=%d\n", meta.Count, meta.DataSize, meta.TsMin, meta.TsMax)
	if footerOnly {
		return nil
	}

	it := r.IterRange(nil, nil)
	n := 0
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		if limit > 0 && n >= limit {
			fmt.Printf("... truncated at %d records\n", limit)
			break
		}
		fmt.Printf("ts=%d %s\n", rec.Timestamp, formatRecord(rec, useHex))
		n++
	}
	return it.Err()
}

func dumpManifest(path string) error {
	catalog := manifest.NewCatalog(path, logging.Discard)
	if err := catalog.Load(); err != nil {
		return err
	}
	total := 0
	for _, level := range catalog.Levels() {
		tables := catalog.Level(level)
		var bytes uint64
		for _, t := range tables {
			bytes += t.DataSize
		}
		fmt.Printf("L%d: %d tables, %d bytes\n", level, len(tables), bytes)
		for _, t := range tables {
			fmt.Printf("  id=%d count=%d size=%d %q .. %q\n",
				t.ID, t.Count, t.DataSize, t.MinKey, t.MaxKey)
		}
		total += len(tables)
	}
	fmt.Printf("%d live tables\n", total)
	return nil
}

func formatRecord(rec base.Record, useHex bool) string {
	if rec.Tombstone() {
		return fmt.Sprintf("DELETE %s", formatBytes(rec.Key, useHex))
	}
	return fmt.Sprintf("PUT %s = %s", formatBytes(rec.Key, useHex), formatBytes(rec.Value, useHex))
}

func formatBytes(b []byte, useHex bool) string {
	if useHex {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%q", b)
}
