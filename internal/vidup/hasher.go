package vidup

import (
	"fmt"

	"vidup/internal/ledger"
)

// Hasher computes the content fingerprint used as the ledger key.
// Equal bytes always give equal hashes.
type Hasher interface {
	Hash(path *Path) (ledger.ContentHash, error)
}

// HashingError is returned when a file cannot be read for hashing.
type HashingError struct {
	Path string
	Err  error
}

func (e *HashingError) Error() string {
	return fmt.Sprintf("hashing %s: %v", e.Path, e.Err)
}

func (e *HashingError) Unwrap() error { return e.Err }
