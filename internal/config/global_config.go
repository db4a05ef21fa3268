package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/crashcapture/internal/fsutil"
)

// UserConfigPath returns the per-user configuration file path,
// ~/.config/crashcapture/config.yaml.
func UserConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", AppName, "config.yaml"), nil
}

// EnsureConfigFile writes DefaultConfigYAML to path unless a file already
// exists there. It reports whether a file was created.
func EnsureConfigFile(path string, force bool) (bool, error) {
	if !force {
		if _, statErr := os.Stat(path); statErr == nil {
			return false, nil
		} else if !os.IsNotExist(statErr) {
			return false, fmt.Errorf("checking config: %w", statErr)
		}
	}

	if err := AtomicWrite(path, []byte(DefaultConfigYAML)); err != nil {
		return false, fmt.Errorf("writing config: %w", err)
	}
	return true, nil
}

// AtomicWrite replaces path with data, creating parent directories. An
// existing file keeps its permissions; new files get 0600.
func AtomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	perm := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return fsutil.WriteFileAtomic(path, data, perm)
}
