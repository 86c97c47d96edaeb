package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"vidup/internal/ledger"
	"vidup/internal/vidup"
)

// bufferSize is the read buffer for streaming large videos through the hash.
const bufferSize = 1 << 20

// SHA256Hasher fingerprints file content with SHA-256, streaming through the
// FilesystemManager so multi-gigabyte files are never held in memory.
type SHA256Hasher struct {
	fsmgr vidup.FilesystemManager
}

// NewSHA256Hasher creates a hasher that reads through fsmgr.
func NewSHA256Hasher(fsmgr vidup.FilesystemManager) *SHA256Hasher {
	return &SHA256Hasher{fsmgr: fsmgr}
}

// Hash returns the lowercase hex SHA-256 of the file's content.
func (h *SHA256Hasher) Hash(path *vidup.Path) (ledger.ContentHash, error) {
	if path.IsDir() {
		return "", &vidup.HashingError{Path: path.String(), Err: fmt.Errorf("is a directory")}
	}

	f, err := h.fsmgr.Open(path)
	if err != nil {
		return "", &vidup.HashingError{Path: path.String(), Err: err}
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.CopyBuffer(sum, f, make([]byte, bufferSize)); err != nil {
		return "", &vidup.HashingError{Path: path.String(), Err: err}
	}
	return ledger.ContentHash(hex.EncodeToString(sum.Sum(nil))), nil
}

var _ vidup.Hasher = (*SHA256Hasher)(nil)
