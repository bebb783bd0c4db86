package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "tempo-sync"

// Config file name.
const configFileName = "config.toml"

// Well-known file names inside the data directory.
const (
	StateFileName      = "state.db"
	CredentialFileName = "credential.json"
	LogFileName        = "tempo-sync.log"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/tempo-sync).
// On macOS, uses ~/Library/Application Support/tempo-sync per Apple
// guidelines. Other platforms fall back to ~/.config/tempo-sync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (state database, credential file, logs).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/tempo-sync).
// On macOS, config and data share one directory per platform convention.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// xdgDir resolves an XDG base directory variable with a fallback base.
func xdgDir(envVar, fallbackBase string) string {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appName)
	}

	return filepath.Join(fallbackBase, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// StatePath returns the state database path inside the data directory.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, StateFileName)
}

// CredentialPath returns the credential file path inside the data directory.
func (c *Config) CredentialPath() string {
	return filepath.Join(c.DataDir, CredentialFileName)
}

// LogPath returns the log file path: the configured log_file if set,
// otherwise the default location inside the data directory.
func (c *Config) LogPath() string {
	if c.Logging.LogFile != "" {
		return c.Logging.LogFile
	}

	return filepath.Join(c.DataDir, LogFileName)
}
