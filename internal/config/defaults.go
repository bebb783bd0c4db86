package config

// Default values for configuration options. These are chosen so the client
// works against the production backend with no config file at all.
const (
	defaultBaseURL              = "https://api.tempo.app/v1/"
	defaultRequestTimeout       = "30s"
	defaultRealtimeURL          = "wss://realtime.tempo.app/v1/socket"
	defaultBackoffBase          = "1s"
	defaultBackoffCeiling       = "30s"
	defaultMaxReconnectAttempts = 10
	defaultMaxAttempts          = 5
	defaultSyncInterval         = "0"
	defaultLogLevel             = "info"
	defaultLogFormat            = "auto"
	defaultLogRetentionDays     = 30
)

// DefaultConfig returns a Config populated with all default values. It is
// both the starting point for TOML decoding (unset fields keep defaults)
// and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        defaultBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Realtime: RealtimeConfig{
			URL:                  defaultRealtimeURL,
			Websocket:            true,
			BackoffBase:          defaultBackoffBase,
			BackoffCeiling:       defaultBackoffCeiling,
			MaxReconnectAttempts: defaultMaxReconnectAttempts,
		},
		Sync: SyncConfig{
			MaxAttempts: defaultMaxAttempts,
			Interval:    defaultSyncInterval,
		},
		Logging: LoggingConfig{
			LogLevel:         defaultLogLevel,
			LogFormat:        defaultLogFormat,
			LogRetentionDays: defaultLogRetentionDays,
		},
	}
}
