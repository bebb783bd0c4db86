package realtime

import "time"

// Default reconnection policy. Growth is pure exponential with no jitter:
// the delay strictly increases between consecutive attempts until it holds
// at the ceiling, which keeps the schedule deterministic and testable.
const (
	DefaultBackoffBase    = 1 * time.Second
	DefaultBackoffCeiling = 30 * time.Second
	DefaultMaxAttempts    = 10
)

// backoff tracks the reconnect delay between attempts.
type backoff struct {
	base    time.Duration
	ceiling time.Duration
	current time.Duration
}

func newBackoff(base, ceiling time.Duration) *backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}

	if ceiling < base {
		ceiling = DefaultBackoffCeiling
	}

	return &backoff{base: base, ceiling: ceiling, current: base}
}

// next returns the delay to wait before the upcoming attempt, then doubles
// the stored delay up to the ceiling.
func (b *backoff) next() time.Duration {
	d := b.current

	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}

	return d
}
