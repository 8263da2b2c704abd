package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable consulted when --config is not given.
const EnvConfigPath = "TASKFERRY_CONFIG"

// ErrNoConfig is returned by DiscoverConfig when no candidate file exists.
var ErrNoConfig = errors.New("no config found")

// DiscoverConfig resolves the config file to load.
// Priority order: explicit path (--config), $TASKFERRY_CONFIG,
// ~/.config/taskferry/config.yaml, ./config.yaml.
// An explicit path or env value that does not exist is an error; an empty
// search returns ErrNoConfig so callers can fall back to Defaults().
func DiscoverConfig(explicit string) (string, error) {
	if explicit != "" {
		if !fileExists(explicit) && !dirExists(explicit) {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if path := os.Getenv(EnvConfigPath); path != "" {
		if !fileExists(path) && !dirExists(path) {
			return "", fmt.Errorf("$%s points at missing file: %s", EnvConfigPath, path)
		}
		return path, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "taskferry", "config.yaml")
		if fileExists(userConfig) {
			return userConfig, nil
		}
	}

	if fileExists("config.yaml") {
		return "config.yaml", nil
	}

	return "", fmt.Errorf("%w (checked: --config, $%s, ~/.config/taskferry/config.yaml, ./config.yaml)", ErrNoConfig, EnvConfigPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
