package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger  *zap.Logger
	homeDir string
	workDir string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return &Loader{logger: logger, homeDir: home, workDir: cwd}
}

// Load loads configuration with layered precedence:
// 1. Defaults
// 2. User config (~/.config/drift/config.yaml)
// 3. Project config (drift.yaml in the working directory), or explicit, if given
//
// Each layer only overrides the keys it sets. Flags are applied by the
// caller on top of the result.
func (l *Loader) Load(explicit string) (*Config, error) {
	cfg := DefaultConfig()

	if l.homeDir != "" {
		userPath := filepath.Join(l.homeDir, UserConfigDir, UserConfigFile)
		if err := overlayFile(cfg, userPath); err == nil {
			l.logger.Debug("loaded user config", zap.String("path", userPath))
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("failed to load user config", zap.String("path", userPath), zap.Error(err))
		}
	}

	if explicit != "" {
		if err := overlayFile(cfg, explicit); err != nil {
			return nil, err
		}
		l.logger.Debug("loaded config", zap.String("path", explicit))
	} else if l.workDir != "" {
		projectPath := filepath.Join(l.workDir, ProjectConfigFile)
		if err := overlayFile(cfg, projectPath); err == nil {
			l.logger.Debug("loaded project config", zap.String("path", projectPath))
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("failed to load project config", zap.String("path", projectPath), zap.Error(err))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
