package vidup

import "io"

// Metadata names mirrored to the vault.
const (
	MetadataLedger = "ledger"
	MetadataDB     = "db"
)

// Vault stores off-host snapshots of vidup's own state: the encrypted ledger
// and the operation database. Videos themselves go to Telegram, never here.
type Vault interface {
	// PutMetadata stores a named metadata item for a specific host.
	// size is the number of bytes that will be read from r.
	// version is stored alongside the metadata for consistency checks.
	PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error

	// GetMetadata retrieves a named metadata item for a specific host and writes it to w.
	GetMetadata(hostID string, name string, w io.Writer) error

	// GetMetadataVersion returns the metadata version for a named item on a host.
	// Returns 0 if no metadata has been stored for this host/name.
	GetMetadataVersion(hostID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
