package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/twofa/internal/twofa/store"
	"github.com/aussiebroadwan/twofa/pkg/cryptox"
)

// sealingInfo binds derived keys to this use; changing it orphans every
// sealed secret.
const sealingInfo = "twofa/user-secret/v1"

// InitSealing wraps st so secrets are encrypted at rest when a master key is
// configured through TWOFA_MASTER_KEY_PATH or TWOFA_MASTER_KEY. Without one
// secrets are stored as plain bytes.
func InitSealing(cfg Config, st store.Store, logger *slog.Logger) (store.Store, error) {
	master, err := cryptox.LoadMasterKey(cfg.MasterKeyPath, MasterKeyEnv)
	if errors.Is(err, cryptox.ErrMasterKeyMissing) && cfg.MasterKeyPath == "" {
		logger.Warn("no master key configured, secrets are stored unsealed")
		return st, nil
	}
	if err != nil {
		return nil, err
	}

	box, err := cryptox.NewSecretBox(master, sealingInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret sealing: %w", err)
	}

	logger.Info("secret sealing enabled", "key_path", cfg.MasterKeyPath)
	return store.NewSealed(st, box), nil
}
