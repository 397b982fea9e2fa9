package config

import (
	"os"
	"path/filepath"
)

const appName = "mdbridge"

// GetAppDir returns the per-user configuration directory. XDG_CONFIG_HOME
// (and APPDATA on Windows) is honoured through os.UserConfigDir.
func GetAppDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, appName)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// GetStateDir holds the persisted key-value database.
func GetStateDir() string {
	return filepath.Join(GetAppDir(), "state")
}

// GetLogsDir holds one debug log per bridge run.
func GetLogsDir() string {
	return filepath.Join(GetAppDir(), "logs")
}

// GetRuntimeDir holds the lock, pid and active intake port files.
func GetRuntimeDir() string {
	return filepath.Join(GetAppDir(), "run")
}

// GetStorePath is the SQLite file backing the persisted key-value state.
func GetStorePath() string {
	return filepath.Join(GetStateDir(), "bridge.db")
}
