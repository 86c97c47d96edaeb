package encryption

import (
	"fmt"

	"vidup/internal/config"
	"vidup/internal/vidup"
)

// NewEncryptorFromConfig picks the snapshot encryptor named by cfg.Type.
// "seal" keeps snapshots readable and is meant for tests.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (vidup.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "seal":
		return NewSealEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type %q (want \"age\" or \"seal\")", cfg.Type)
	}
}
