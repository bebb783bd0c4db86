// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for tempo-sync. Settings follow a
// three-layer override chain (defaults -> config file -> CLI flags); the
// file is optional, so a first run needs no setup beyond a credential.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	// DataDir holds the state database, the credential file, and rotated
	// logs. Empty means the platform default data directory.
	DataDir string `toml:"data_dir"`

	API      APIConfig      `toml:"api"`
	Realtime RealtimeConfig `toml:"realtime"`
	Sync     SyncConfig     `toml:"sync"`
	Logging  LoggingConfig  `toml:"logging"`
}

// APIConfig controls the HTTP client used for queued operation transmission
// and for the long-poll fallback transport.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
}

// RealtimeConfig controls the realtime channel: endpoint, transport
// selection, and the reconnection policy.
type RealtimeConfig struct {
	// URL is the websocket endpoint. The long-poll fallback rides on the
	// API base URL instead.
	URL string `toml:"url"`

	// Websocket false skips the websocket dialer entirely and goes straight
	// to long polling. Useful behind proxies that break websockets.
	Websocket bool `toml:"websocket"`

	BackoffBase          string `toml:"backoff_base"`
	BackoffCeiling       string `toml:"backoff_ceiling"`
	MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
}

// SyncConfig controls the sync engine: the per-operation attempt budget and
// the optional periodic drain interval.
type SyncConfig struct {
	MaxAttempts int `toml:"max_attempts"`

	// Interval drives periodic background sync passes; "0" disables them
	// so passes run only on connect or on demand.
	Interval string `toml:"interval"`
}

// LoggingConfig controls log output behavior: level, format, and rotation.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogFormat        string `toml:"log_format"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// CLIOverrides holds values from CLI flags that override config file
// settings. Pointer fields distinguish "not specified" (nil) from
// "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	DataDir    *string // --data-dir flag
	LogLevel   *string // --log-level flag
}

// Duration accessors. Validate guarantees these strings parse, so the
// accessors swallow the impossible error and return the zero duration.

// RequestTimeoutDuration returns the parsed API request timeout.
func (a *APIConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(a.RequestTimeout)
	return d
}

// BackoffBaseDuration returns the parsed reconnect backoff base.
func (r *RealtimeConfig) BackoffBaseDuration() time.Duration {
	d, _ := time.ParseDuration(r.BackoffBase)
	return d
}

// BackoffCeilingDuration returns the parsed reconnect backoff ceiling.
func (r *RealtimeConfig) BackoffCeilingDuration() time.Duration {
	d, _ := time.ParseDuration(r.BackoffCeiling)
	return d
}

// IntervalDuration returns the parsed periodic sync interval; zero means
// periodic sync is disabled.
func (s *SyncConfig) IntervalDuration() time.Duration {
	if s.Interval == "" || s.Interval == "0" {
		return 0
	}

	d, _ := time.ParseDuration(s.Interval)

	return d
}
