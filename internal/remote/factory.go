package remote

import (
	"fmt"

	"lumen-go/internal/config"
	"lumen-go/internal/encryption"
	"lumen-go/internal/lumen"
)

// NewRemoteFromConfig creates a RemoteStore implementation based on the
// remote config type.
func NewRemoteFromConfig(cfg config.RemoteConfig, enc encryption.Encryptor, clock lumen.Clock, logger lumen.Logger) (lumen.RemoteStore, error) {
	switch cfg.Type {
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem remote requires root to be set")
		}
		return NewFilesystemRemote(cfg.Root, enc, clock, logger), nil
	case "memory":
		return NewMemoryRemote(), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
