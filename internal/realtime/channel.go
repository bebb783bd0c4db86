// Package realtime maintains the persistent bidirectional connection to the
// backend. It shields the rest of the system from transport instability:
// every server-pushed event is republished verbatim onto the local event
// bus, drops trigger bounded exponential-backoff reconnection, and a
// degraded long-poll transport backs up the primary websocket.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tempohq/tempo-sync-go/internal/bus"
)

// State is the connection lifecycle state.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// TokenSource provides the bearer credential at connect time. Satisfied by
// credfile.Source.
type TokenSource interface {
	Token() (string, error)
}

// Publisher is the notification side of the event bus. Satisfied by *bus.Bus.
type Publisher interface {
	Emit(event string, data any)
}

// Config holds the options for NewChannel.
type Config struct {
	// Dialers are tried in order on every connect attempt: primary
	// websocket first, degraded long-poll fallback second.
	Dialers []Dialer

	Token TokenSource
	Bus   Publisher

	// MaxAttempts bounds automatic reconnection after a drop; 0 means
	// DefaultMaxAttempts. Exhausting the budget stops reconnection until an
	// explicit Connect call.
	MaxAttempts int

	BackoffBase    time.Duration // 0 → DefaultBackoffBase
	BackoffCeiling time.Duration // 0 → DefaultBackoffCeiling

	Logger *slog.Logger
}

// Channel owns the realtime connection handle exclusively; all interaction
// goes through its methods and the event bus.
type Channel struct {
	dialers     []Dialer
	token       TokenSource
	bus         Publisher
	maxAttempts int
	logger      *slog.Logger
	backoffBase time.Duration
	backoffCeil time.Duration

	// sleepFunc waits between reconnect attempts. Tests override this to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	state      State
	generation uint64 // bumped by Connect/Disconnect to orphan stale attempts
	transport  Transport
}

// NewChannel creates a disconnected Channel.
func NewChannel(cfg *Config) *Channel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Channel{
		dialers:     cfg.Dialers,
		token:       cfg.Token,
		bus:         cfg.Bus,
		maxAttempts: maxAttempts,
		logger:      logger,
		backoffBase: cfg.BackoffBase,
		backoffCeil: cfg.BackoffCeiling,
		sleepFunc:   timeSleep,
	}
}

// Connect establishes the connection. If the channel is already connected
// or an attempt is in flight, Connect is a no-op returning nil — exactly
// one underlying connection attempt results from concurrent calls. A
// missing credential or an unreachable backend is an explicit error, and
// the channel returns to disconnected.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}

	c.state = StateConnecting
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	tok, err := c.token.Token()
	if err != nil {
		c.setStateIfCurrent(gen, StateDisconnected)
		return fmt.Errorf("realtime: obtaining credential: %w", err)
	}

	tr, err := c.dial(ctx, tok)
	if err != nil {
		c.setStateIfCurrent(gen, StateDisconnected)
		return err
	}

	if !c.adopt(gen, tr) {
		// Disconnect raced the handshake; the settlement is ignored.
		tr.Close()
		return nil
	}

	c.logger.Info("realtime connected", slog.String("transport", tr.Mode()))
	c.bus.Emit(bus.EventConnected, tr.Mode())

	go c.readPump(gen, tr)

	return nil
}

// Disconnect closes the connection, releases the handle, and immediately
// stops any reconnection in progress: in-flight attempts settle against a
// stale generation and are ignored. A later Connect re-establishes cleanly.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.generation++
	tr := c.transport
	c.transport = nil
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if tr != nil {
		tr.Close()
	}

	if wasConnected {
		c.logger.Info("realtime disconnected")
		c.bus.Emit(bus.EventDisconnected, nil)
	}
}

// Emit sends a client-to-server event if currently connected; otherwise the
// event is dropped. Callers needing guaranteed delivery must use the
// operation queue — the channel offers best-effort low-latency delivery,
// not durability.
func (c *Channel) Emit(ctx context.Context, name string, data []byte) error {
	c.mu.Lock()
	tr := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || tr == nil {
		c.logger.Debug("dropping emit while disconnected", slog.String("event", name))
		return nil
	}

	return tr.Write(ctx, Event{Name: name, Data: data})
}

// IsConnected reports whether the channel is currently connected.
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// dial tries each transport in order within a single connect attempt.
// Falling back is a transport-selection detail: event semantics are
// identical on every transport.
func (c *Channel) dial(ctx context.Context, token string) (Transport, error) {
	var errs []error

	for i, d := range c.dialers {
		tr, err := d.Dial(ctx, token)
		if err == nil {
			if i > 0 {
				c.logger.Warn("primary transport unavailable, using fallback",
					slog.String("transport", tr.Mode()),
				)
			}

			return tr, nil
		}

		errs = append(errs, err)
	}

	return nil, fmt.Errorf("realtime: all transports failed: %w", errors.Join(errs...))
}

// readPump republishes every received event onto the bus until the
// connection drops, then hands off to the reconnect loop. Delivery order
// matches transport order; republishing imposes no reordering.
func (c *Channel) readPump(gen uint64, tr Transport) {
	for {
		ev, err := tr.Read(context.Background())
		if err != nil {
			if c.stale(gen) {
				// Deliberate disconnect; settlement ignored.
				return
			}

			c.logger.Warn("realtime connection dropped", slog.String("error", err.Error()))
			c.handleDrop(gen, tr)

			return
		}

		// An event read just as the handle was invalidated settles against
		// a stale generation: it is discarded and the pump exits.
		if c.stale(gen) {
			return
		}

		c.bus.Emit(ev.Name, ev.Data)
	}
}

// handleDrop transitions to disconnected and runs the bounded reconnect
// loop. On success the attempt counter and backoff reset (a fresh loop runs
// for the next drop); on exhaustion automatic reconnection stops until an
// explicit Connect.
func (c *Channel) handleDrop(gen uint64, dropped Transport) {
	dropped.Close()

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}

	c.state = StateDisconnected
	c.transport = nil
	c.mu.Unlock()

	c.bus.Emit(bus.EventDisconnected, nil)

	bo := newBackoff(c.backoffBase, c.backoffCeil)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		delay := bo.next()

		c.logger.Info("scheduling reconnect",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxAttempts),
			slog.Duration("backoff", delay),
		)

		if err := c.sleepFunc(context.Background(), delay); err != nil {
			return
		}

		if c.stale(gen) {
			return
		}

		tok, err := c.token.Token()
		if err != nil {
			c.logger.Warn("reconnect: credential unavailable", slog.String("error", err.Error()))
			continue
		}

		c.setStateIfCurrent(gen, StateConnecting)

		tr, err := c.dial(context.Background(), tok)
		if err != nil {
			c.setStateIfCurrent(gen, StateDisconnected)
			c.logger.Warn("reconnect attempt failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)

			continue
		}

		if !c.adopt(gen, tr) {
			tr.Close()
			return
		}

		c.logger.Info("realtime reconnected",
			slog.String("transport", tr.Mode()),
			slog.Int("attempts", attempt),
		)
		c.bus.Emit(bus.EventConnected, tr.Mode())

		go c.readPump(gen, tr)

		return
	}

	c.logger.Warn("reconnect attempts exhausted, awaiting explicit connect",
		slog.Int("max_attempts", c.maxAttempts),
	)
	c.bus.Emit(bus.EventReconnectExhausted, c.maxAttempts)
}

// adopt installs the transport if the generation is still current.
func (c *Channel) adopt(gen uint64, tr Transport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}

	c.transport = tr
	c.state = StateConnected

	return true
}

// stale reports whether gen has been superseded by Connect or Disconnect.
func (c *Channel) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation != gen
}

// setStateIfCurrent updates the state only if gen is still current.
func (c *Channel) setStateIfCurrent(gen uint64, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation == gen {
		c.state = s
	}
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Channel.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
