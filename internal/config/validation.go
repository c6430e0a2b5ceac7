package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tokility/tokilityd/internal/crypto"
)

// Validate checks a loaded configuration for values the daemon cannot
// start with.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level %q: %w", cfg.Log.Level, err)
	}
	if addr := cfg.Marketplace.PlatformFeeAddress; addr != "" && !crypto.IsValidAddress(addr) {
		return fmt.Errorf("marketplace.platform_fee_address %q is malformed", addr)
	}
	return nil
}
