package realtime

import (
	"context"
	"encoding/json"
)

// Event is a single realtime frame in either direction. Names follow the
// dotted categories in the bus package; payloads stay opaque until a
// subscriber interprets them.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Transport is one established bidirectional connection. Implementations
// are not required to be safe for concurrent Read calls; the channel owns
// a single read pump per connection.
type Transport interface {
	// Read blocks until the next server-pushed event arrives or the
	// connection drops.
	Read(ctx context.Context) (Event, error)

	// Write sends a client-to-server event.
	Write(ctx context.Context, ev Event) error

	// Close tears the connection down. Safe to call concurrently with Read,
	// which then returns an error.
	Close() error

	// Mode names the transport for logs ("websocket", "longpoll").
	Mode() string
}

// Dialer establishes a Transport using the bearer credential supplied at
// connect time. The channel tries its dialers in order — primary first,
// degraded fallback second — within a single connect attempt.
type Dialer interface {
	Dial(ctx context.Context, token string) (Transport, error)
}
