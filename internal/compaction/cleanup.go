// cleanup.go holds the file reclamation helpers compaction shares with
// recovery.
package compaction

import "os"

// removeIfExists unlinks path, tolerating its absence.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// UnlinkInputs removes the data and meta files of compacted input tables.
// Called only after the catalog no longer references them; a missing file
// is not an error.
func UnlinkInputs(paths []string) error {
	for _, p := range paths {
		if err := removeIfExists(p); err != nil {
			return err
		}
	}
	return nil
}
