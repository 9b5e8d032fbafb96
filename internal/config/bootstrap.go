package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed default.yml
var defaultYAML []byte

// DefaultYAML returns the commented default config shipped with the binary.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// EnsureUserConfig returns dataDir/config.yml, writing the shipped default there first
// if the user has none yet.
func EnsureUserConfig(dataDir string) (string, error) {
	userPath := filepath.Join(dataDir, "config.yml")

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(userPath, defaultYAML, 0o644); err != nil {
		return "", fmt.Errorf("write default config: %w", err)
	}
	return userPath, nil
}
