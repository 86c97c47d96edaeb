package testutil

import (
	"crypto/sha256"
	"encoding/hex"

	"vidup/internal/hasher"
	"vidup/internal/ledger"
	"vidup/internal/vidup"
)

// SHA256Hex returns the SHA-256 checksum of data as a lowercase hex string.
// Matches the content hashes the ledger is keyed by.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashOf is SHA256Hex as a ContentHash.
func HashOf(data []byte) ledger.ContentHash {
	return ledger.ContentHash(SHA256Hex(data))
}

// NewTestHasher returns the production hasher reading through fsmgr.
func NewTestHasher(fsmgr *MockFilesystemManager) vidup.Hasher {
	return hasher.NewSHA256Hasher(fsmgr)
}
