package vidup

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrNoVault is returned by snapshot operations when no vault is configured.
var ErrNoVault = errors.New("no vault configured")

// SnapshotLedger encrypts the current ledger and stores it in the vault
// under the given version. It is a no-op without a vault.
func (s *UploadService) SnapshotLedger(version int64) error {
	if s.vault == nil {
		return nil
	}
	if s.encryptor == nil {
		return fmt.Errorf("ledger snapshot requires an encryptor")
	}

	var plain bytes.Buffer
	if _, err := s.ledger.WriteTo(&plain); err != nil {
		return fmt.Errorf("serializing ledger: %w", err)
	}

	var sealed bytes.Buffer
	if err := s.encryptor.Encrypt(&plain, &sealed); err != nil {
		return fmt.Errorf("encrypting ledger: %w", err)
	}

	size := int64(sealed.Len())
	if err := s.vault.PutMetadata(s.opts.HostID, MetadataLedger, &sealed, size, version); err != nil {
		return fmt.Errorf("uploading ledger snapshot: %w", err)
	}

	s.logger.Debug("ledger snapshot stored", "version", version, "bytes", size)
	return nil
}

// RestoreLedger replaces the local ledger with the latest snapshot from the
// vault. decryptCtx comes from Encryptor.Unlock. Returns the restored version.
func (s *UploadService) RestoreLedger(decryptCtx DecryptionContext) (int64, error) {
	if s.vault == nil {
		return 0, ErrNoVault
	}
	if decryptCtx == nil {
		return 0, fmt.Errorf("restoring ledger requires an unlocked key")
	}

	version, err := s.vault.GetMetadataVersion(s.opts.HostID, MetadataLedger)
	if err != nil {
		return 0, fmt.Errorf("checking snapshot version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("no ledger snapshot stored for host %s", s.opts.HostID)
	}

	var sealed bytes.Buffer
	if err := s.vault.GetMetadata(s.opts.HostID, MetadataLedger, &sealed); err != nil {
		return 0, fmt.Errorf("downloading ledger snapshot: %w", err)
	}

	var plain bytes.Buffer
	if err := decryptCtx.Decrypt(&sealed, &plain); err != nil {
		return 0, fmt.Errorf("decrypting ledger snapshot: %w", err)
	}

	if err := s.ledger.ReplaceWith(&plain); err != nil {
		return 0, fmt.Errorf("restoring ledger: %w", err)
	}

	s.logger.Info("ledger restored from vault", "version", version, "uploads", s.ledger.Len())
	return version, nil
}
