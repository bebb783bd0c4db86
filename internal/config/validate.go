package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minMaxAttempts       = 1
	maxMaxAttempts       = 20
	minReconnectAttempts = 1
	maxReconnectAttempts = 100
	minRequestTimeout    = 1 * time.Second
	minBackoffBase       = 100 * time.Millisecond
	minSyncInterval      = 5 * time.Second
	minLogRetention      = 1
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateRealtime(&cfg.Realtime)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	if err := validateURL(a.BaseURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	}

	d, err := time.ParseDuration(a.RequestTimeout)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("request_timeout: %w", err))
	case d < minRequestTimeout:
		errs = append(errs, fmt.Errorf("request_timeout: must be at least %v, got %v", minRequestTimeout, d))
	}

	return errs
}

func validateRealtime(r *RealtimeConfig) []error {
	var errs []error

	if r.Websocket {
		if err := validateURL(r.URL, "ws", "wss"); err != nil {
			errs = append(errs, fmt.Errorf("realtime url: %w", err))
		}
	}

	base, baseErr := time.ParseDuration(r.BackoffBase)

	switch {
	case baseErr != nil:
		errs = append(errs, fmt.Errorf("backoff_base: %w", baseErr))
	case base < minBackoffBase:
		errs = append(errs, fmt.Errorf("backoff_base: must be at least %v, got %v", minBackoffBase, base))
	}

	ceiling, ceilErr := time.ParseDuration(r.BackoffCeiling)

	switch {
	case ceilErr != nil:
		errs = append(errs, fmt.Errorf("backoff_ceiling: %w", ceilErr))
	case baseErr == nil && ceiling < base:
		errs = append(errs, fmt.Errorf("backoff_ceiling: must be at least backoff_base (%v), got %v", base, ceiling))
	}

	if r.MaxReconnectAttempts < minReconnectAttempts || r.MaxReconnectAttempts > maxReconnectAttempts {
		errs = append(errs, fmt.Errorf("max_reconnect_attempts: must be between %d and %d, got %d",
			minReconnectAttempts, maxReconnectAttempts, r.MaxReconnectAttempts))
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if s.MaxAttempts < minMaxAttempts || s.MaxAttempts > maxMaxAttempts {
		errs = append(errs, fmt.Errorf("max_attempts: must be between %d and %d, got %d",
			minMaxAttempts, maxMaxAttempts, s.MaxAttempts))
	}

	if s.Interval != "" && s.Interval != "0" {
		d, err := time.ParseDuration(s.Interval)

		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("sync interval: %w", err))
		case d < minSyncInterval:
			errs = append(errs, fmt.Errorf("sync interval: must be 0 or at least %v, got %v", minSyncInterval, d))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: must be debug, info, warn, or error, got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: must be auto, text, or json, got %q", l.LogFormat))
	}

	if l.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("log_retention_days: must be at least %d, got %d",
			minLogRetention, l.LogRetentionDays))
	}

	return errs
}

// validateURL checks that s parses as a URL with one of the allowed schemes
// and a non-empty host.
func validateURL(s string, schemes ...string) error {
	if s == "" {
		return errors.New("must not be empty")
	}

	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", s, err)
	}

	for _, scheme := range schemes {
		if u.Scheme == scheme {
			if u.Host == "" {
				return fmt.Errorf("URL %q has no host", s)
			}

			return nil
		}
	}

	return fmt.Errorf("URL %q must use scheme %v", s, schemes)
}
