package encryption

import (
	"fmt"
	"io"

	"lumen-go/internal/config"
)

// Encryptor transforms the remote snapshot bytes at rest. Implementations
// must round-trip: Decrypt(Encrypt(x)) == x.
type Encryptor interface {
	Encrypt(r io.Reader, w io.Writer) error
	Decrypt(r io.Reader, w io.Writer) error
}

// NewEncryptorFromConfig creates an Encryptor based on the encryption config
// type. A nil Encryptor (type "none") means snapshots are stored in plain,
// human-diffable form.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (Encryptor, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "age":
		if cfg.IdentityPath == "" {
			return nil, fmt.Errorf("age encryption requires identity_path to be set")
		}
		return NewAgeEncryptor(cfg.IdentityPath), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %s", cfg.Type)
	}
}
