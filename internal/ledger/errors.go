package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeSize is returned by AddUpload when fileSize < 0.
	ErrNegativeSize = errors.New("file size must not be negative")

	// ErrEmptyHash is returned when a mutation is given an empty content hash.
	ErrEmptyHash = errors.New("content hash must not be empty")

	// ErrUnsupportedVersion means the stored document was written by a newer vidup.
	ErrUnsupportedVersion = errors.New("unsupported ledger document version")

	// ErrLocked means another process holds the ledger lock.
	ErrLocked = errors.New("ledger is locked by another process")
)

// LoadError describes a ledger file that existed but could not be read or
// parsed. Open recovers from it by starting empty; the error stays available
// through Ledger.LoadErr so the caller can surface it.
type LoadError struct {
	Path string
	// Preserved is where the unreadable file was moved, or "" if it was left in place.
	Preserved string
	Err       error
}

func (e *LoadError) Error() string {
	if e.Preserved != "" {
		return fmt.Sprintf("loading ledger %s (moved aside to %s): %v", e.Path, e.Preserved, e.Err)
	}
	return fmt.Sprintf("loading ledger %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PersistError is returned by every mutating operation whose write to disk
// failed. The in-memory state already reflects the mutation.
type PersistError struct {
	Path string
	Op   string // "encode", "mkdir", "backup" or "write"
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting ledger %s (%s): %v", e.Path, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
