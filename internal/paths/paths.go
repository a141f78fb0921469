// Package paths resolves the carsync configuration and data directories.
//
// Both follow the same precedence: an explicit flag, then (for data only)
// the data_dir value from config.yaml, then the CARSYNC_* environment
// variable, then a default.
package paths

import (
	"os"
	"path/filepath"
)

// CWD-relative directory names used as defaults.
const (
	DefaultConfigDirName = ".carsync"
	DefaultDataDirName   = ".carsync-db"
)

// Environment variables overriding the directories.
const (
	EnvConfigDir = "CARSYNC_CONFIG_DIR"
	EnvDataDir   = "CARSYNC_DATA_DIR"
)

// getwd is replaced in tests.
var getwd = os.Getwd

// ResolveConfigDir returns the absolute configuration directory: flag,
// then CARSYNC_CONFIG_DIR, then ./.carsync.
func ResolveConfigDir(flag string) (string, error) {
	return resolve(DefaultConfigDirName, flag, os.Getenv(EnvConfigDir))
}

// ResolveDataDir returns the absolute data directory: flag, then the
// config.yaml value, then CARSYNC_DATA_DIR, then ./.carsync-db.
func ResolveDataDir(flag, configValue string) (string, error) {
	return resolve(DefaultDataDirName, flag, configValue, os.Getenv(EnvDataDir))
}

func resolve(defaultName string, candidates ...string) (string, error) {
	for _, c := range candidates {
		if c != "" {
			return filepath.Abs(c)
		}
	}
	cwd, err := getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, defaultName), nil
}
