package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - VIDUP_CONFIG_PATH: config file location (default: ~/.config/vidup.toml)
//   - VIDUP_HOME: base directory for vidup data (default: ~/.local/share/vidup)
//
// The .env file holding Telegram secrets sits next to the config file.
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"env_path":    filepath.Join(filepath.Dir(configPath), "vidup.env"),
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking VIDUP_CONFIG_PATH env var first,
// then falling back to the default ~/.config/vidup.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("VIDUP_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "vidup.toml"), nil
}

// getBaseDir returns the base directory for vidup data, checking VIDUP_HOME env var first,
// then falling back to the XDG default ~/.local/share/vidup.
func getBaseDir() (string, error) {
	if path := os.Getenv("VIDUP_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "vidup"), nil
}
