package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/store"
)

// loadConfig reads and validates the active configuration. Unlike
// config.Get it does not fall back to defaults: commands report a broken
// config file instead of silently ignoring it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// sessionDir is where run logs are written: next to the run database.
func sessionDir(cfg *config.Config) string {
	if cfg.Store.Path == "" {
		return ".montage"
	}
	return filepath.Dir(cfg.Store.Path)
}

// newLogger builds the file logger configured by the logging section.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(sessionDir(cfg), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

// openStore opens the run database, or returns nil when persistence is
// disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	return store.Open(cfg.Store.Path)
}

// requireStore is openStore for commands that only read runs.
func requireStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("no run database configured (set store.path or pass --store)")
	}
	return store.Open(cfg.Store.Path)
}
