package testutil

import (
	"bytes"
	"testing"

	"vidup/internal/encryption"
	"vidup/internal/vault"
	"vidup/internal/vidup"
)

// SnapshotPassphrase unlocks encryptors from NewTestEncryptor.
const SnapshotPassphrase = "correct horse"

// NewTestEncryptor returns a seal encryptor already set up with
// SnapshotPassphrase.
func NewTestEncryptor() *encryption.SealEncryptor {
	enc := encryption.NewSealEncryptor()
	if err := enc.Setup(SnapshotPassphrase); err != nil {
		panic(err)
	}
	return enc
}

// NewTestVault returns an empty in-memory vault.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}

// StoredLedger returns the ledger snapshot hostID has in v, unsealed with
// SnapshotPassphrase.
func StoredLedger(t *testing.T, v vidup.Vault, hostID string) []byte {
	t.Helper()
	var sealed, plain bytes.Buffer
	if err := v.GetMetadata(hostID, vidup.MetadataLedger, &sealed); err != nil {
		t.Fatalf("reading %s ledger snapshot: %v", hostID, err)
	}
	open, err := NewTestEncryptor().Unlock(SnapshotPassphrase)
	if err != nil {
		t.Fatalf("unlocking snapshot: %v", err)
	}
	if err := open.Decrypt(&sealed, &plain); err != nil {
		t.Fatalf("opening %s ledger snapshot: %v", hostID, err)
	}
	return plain.Bytes()
}
