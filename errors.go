// errors.go re-exports the engine error taxonomy at the public surface.
//
// All sentinels match with errors.Is regardless of how many layers of
// context have been wrapped around them.
package loamkv

import "github.com/aalhour/loamkv/internal/base"

var (
	// ErrNotFound is returned by Get when the key is absent or deleted.
	ErrNotFound = base.ErrNotFound

	// ErrInvalidArgument is returned for caller errors: empty keys,
	// inverted range bounds, or invalid configuration.
	ErrInvalidArgument = base.ErrInvalidArgument

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = base.ErrClosed

	// ErrWALCorruption indicates unrecoverable WAL damage found at open.
	ErrWALCorruption = base.ErrWALCorruption

	// ErrSSTable indicates a malformed or unreadable SSTable.
	ErrSSTable = base.ErrSSTable

	// ErrRecovery indicates the persistent state could not be recovered.
	ErrRecovery = base.ErrRecovery

	// ErrCompaction indicates a failed compaction; the store remains
	// operational and the inputs stay live.
	ErrCompaction = base.ErrCompaction

	// ErrTransientRead indicates a read raced a compaction swap; retrying
	// the read succeeds against the updated catalog.
	ErrTransientRead = base.ErrTransientRead
)
