// errors.go defines the sentinel errors for the loamkv error taxonomy.
//
// Each sentinel identifies a kind; call sites wrap them with context and
// callers match with errors.Is.
package base

import "errors"

var (
	// ErrWALCorruption indicates a WAL segment whose first frame is
	// unreadable (bad magic or CRC mismatch at offset 0). Corruption after at
	// least one good frame ends replay of that segment and is reported, not
	// returned. Truncated trailing frames are not corruption; they are
	// silently dropped during replay.
	ErrWALCorruption = errors.New("loamkv: wal corruption")

	// ErrSSTable indicates an SSTable failure: a malformed file, an
	// out-of-order add to a writer, or a read failure.
	ErrSSTable = errors.New("loamkv: sstable error")

	// ErrRecovery indicates that persistent state could not be recovered:
	// the manifest and its backup are both unreadable, or the manifest
	// references files that do not exist.
	ErrRecovery = errors.New("loamkv: recovery error")

	// ErrCompaction indicates a failed compaction. The inputs remain
	// referenced by the catalog and the store stays operational.
	ErrCompaction = errors.New("loamkv: compaction error")

	// ErrNotFound indicates the key is absent or tombstoned.
	ErrNotFound = errors.New("loamkv: not found")

	// ErrInvalidArgument indicates a caller error: empty key, inverted
	// range bounds, or an invalid configuration value such as a negative
	// size (zero fields take their defaults instead).
	ErrInvalidArgument = errors.New("loamkv: invalid argument")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("loamkv: store closed")

	// ErrTransientRead indicates a read raced a compaction swap and observed
	// a file that was unlinked after the catalog changed. A retry against
	// the current catalog succeeds.
	ErrTransientRead = errors.New("loamkv: transient read failure")
)
