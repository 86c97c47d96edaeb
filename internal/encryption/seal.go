package encryption

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"vidup/internal/vidup"
)

// sealMagic starts every sealed snapshot.
const sealMagic = "vidup-seal v1\n"

// ErrSealBroken is returned by Decrypt when a sealed snapshot is truncated,
// has no seal header, or its checksum does not match.
var ErrSealBroken = errors.New("sealed snapshot is damaged")

// SealEncryptor is the keyless "seal" encryption type. It frames a snapshot
// with a header and a SHA-256 trailer so damage is caught on restore, but
// the ledger itself stays readable. It exists for tests and throwaway setups
// that should not need key files.
type SealEncryptor struct {
	passphrase [sha256.Size]byte
	locked     bool
}

var _ vidup.Encryptor = (*SealEncryptor)(nil)

func NewSealEncryptor() *SealEncryptor {
	return &SealEncryptor{}
}

// Setup remembers the passphrase for this instance only; later Unlock calls
// must repeat it. Without Setup any passphrase unlocks.
func (e *SealEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}
	e.passphrase = sha256.Sum256([]byte(passphrase))
	e.locked = true
	return nil
}

func (e *SealEncryptor) IsConfigured() bool { return true }

func (e *SealEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	h := sha256.New()
	if _, err := io.WriteString(w, sealMagic); err != nil {
		return fmt.Errorf("writing seal header: %w", err)
	}
	if _, err := io.Copy(io.MultiWriter(w, h), r); err != nil {
		return fmt.Errorf("sealing snapshot: %w", err)
	}
	if _, err := w.Write(h.Sum(nil)); err != nil {
		return fmt.Errorf("writing seal checksum: %w", err)
	}
	return nil
}

func (e *SealEncryptor) Unlock(passphrase string) (vidup.DecryptionContext, error) {
	if e.locked && sha256.Sum256([]byte(passphrase)) != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return sealOpener{}, nil
}

type sealOpener struct{}

// Decrypt buffers the whole snapshot; ledgers are small and the checksum sits
// at the end.
func (sealOpener) Decrypt(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading sealed snapshot: %w", err)
	}
	if !bytes.HasPrefix(data, []byte(sealMagic)) || len(data) < len(sealMagic)+sha256.Size {
		return ErrSealBroken
	}
	body := data[len(sealMagic) : len(data)-sha256.Size]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], data[len(data)-sha256.Size:]) {
		return fmt.Errorf("%w: checksum mismatch", ErrSealBroken)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing opened snapshot: %w", err)
	}
	return nil
}
