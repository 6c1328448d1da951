// Package paths resolves jolt's per-user filesystem layout following
// the XDG base directory conventions (spec §6).
package paths

import (
	"os"
	"path/filepath"
)

const appDirName = "jolt"

// DataDir returns $XDG_DATA_HOME/jolt, defaulting to ~/.local/share/jolt.
func DataDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, appDirName)
	}
	return filepath.Join(homeDir(), ".local", "share", appDirName)
}

// ConfigDir returns $XDG_CONFIG_HOME/jolt, defaulting to ~/.config/jolt.
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, appDirName)
	}
	return filepath.Join(homeDir(), ".config", appDirName)
}

// RuntimeDir returns $XDG_RUNTIME_DIR/jolt, falling back to DataDir when
// XDG_RUNTIME_DIR is unset (e.g. non-systemd hosts).
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appDirName)
	}
	return DataDir()
}

// DBPath is the embedded database file under DataDir.
func DBPath() string { return filepath.Join(DataDir(), "history.db") }

// SocketPath is the IPC Unix socket under RuntimeDir.
func SocketPath() string { return filepath.Join(RuntimeDir(), "jolt.sock") }

// PIDPath is the daemon's advisory-locked PID file under RuntimeDir.
func PIDPath() string { return filepath.Join(RuntimeDir(), "jolt.pid") }

// ConfigPath is the default TOML config file under ConfigDir.
func ConfigPath() string { return filepath.Join(ConfigDir(), "config.toml") }

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h
	}
	return "."
}
