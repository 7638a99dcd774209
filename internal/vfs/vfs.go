// Package vfs provides the filesystem seam used by the loamkv engine.
//
// The durability-sensitive operations live here: atomic file replacement via
// write-to-temp + fsync + rename, directory fsync after renames so the rename
// itself is durable, and the exclusive data-directory lock that prevents two
// stores from opening the same directory.
package vfs

import (
	"io"
	"os"
	"path/filepath"
)

// SyncDir syncs a directory so that metadata changes (creates, renames,
// removals) inside it are durable.
func SyncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	syncErr := dir.Sync()
	closeErr := dir.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// SyncFile fsyncs the named file.
func SyncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// WriteFileAtomic writes data to path atomically: the data is written to a
// sibling .tmp file, fsynced, renamed over path, and the parent directory is
// synced. Readers observe either the old contents or the new, never a
// partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
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
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return SyncDir(filepath.Dir(path))
}

// Rename renames oldpath to newpath and syncs the destination directory so
// the rename is durable.
func Rename(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		return err
	}
	return SyncDir(filepath.Dir(newpath))
}

// Exists reports whether the named file or directory exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListDir returns the names of the entries in path.
func ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Lock acquires an exclusive advisory lock on the named file, creating it if
// needed. The returned Closer releases the lock. A second Lock on the same
// file fails while the first is held.
func Lock(name string) (io.Closer, error) {
	return lockFile(name)
}
