// Package core assembles the client from its parts: persistent store,
// durable operation queue, sync engine, realtime channel, and event bus.
// It is the single public surface callers use — the CLI builds exactly one
// Core and every command goes through it.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/tempohq/tempo-sync-go/internal/api"
	"github.com/tempohq/tempo-sync-go/internal/bus"
	"github.com/tempohq/tempo-sync-go/internal/config"
	"github.com/tempohq/tempo-sync-go/internal/credfile"
	"github.com/tempohq/tempo-sync-go/internal/engine"
	"github.com/tempohq/tempo-sync-go/internal/queue"
	"github.com/tempohq/tempo-sync-go/internal/realtime"
	"github.com/tempohq/tempo-sync-go/internal/store"
)

// Core is the assembled sync client. All dependencies are built from the
// injected Config; nothing reaches for globals, so tests can construct a
// Core against a temp directory and a fake backend.
type Core struct {
	cfg    *config.Config
	logger *slog.Logger

	store   *store.Store
	queue   *queue.Queue
	bus     *bus.Bus
	client  *api.Client
	engine  *engine.Engine
	channel *realtime.Channel

	closeOnce sync.Once
	closeErr  error
}

// New builds a Core from configuration. The data directory is created if
// missing. The store is opened and the queue restored from it, so pending
// operations from a previous run are immediately visible.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("core: creating data dir: %w", err)
	}

	st, err := store.Open(cfg.StatePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("core: opening store: %w", err)
	}

	b := bus.New(logger)
	q := queue.New(ctx, st, logger)

	token := credfile.Source{Path: cfg.CredentialPath()}

	httpClient := &http.Client{Timeout: cfg.API.RequestTimeoutDuration()}
	client := api.NewClient(cfg.API.BaseURL, httpClient, token, logger)

	eng := engine.New(&engine.Config{
		Queue:       q,
		Transmitter: client,
		Bus:         b,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Logger:      logger,
	})

	var dialers []realtime.Dialer
	if cfg.Realtime.Websocket {
		// The websocket handshake takes its deadline from the dial context;
		// http.Client.Timeout is rejected by coder/websocket because it
		// would apply to the connection's whole lifetime.
		dialers = append(dialers, &realtime.WebsocketDialer{URL: cfg.Realtime.URL})
	}

	dialers = append(dialers, &realtime.LongPollDialer{Client: client})

	channel := realtime.NewChannel(&realtime.Config{
		Dialers:        dialers,
		Token:          token,
		Bus:            b,
		MaxAttempts:    cfg.Realtime.MaxReconnectAttempts,
		BackoffBase:    cfg.Realtime.BackoffBaseDuration(),
		BackoffCeiling: cfg.Realtime.BackoffCeilingDuration(),
		Logger:         logger,
	})

	c := &Core{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		queue:   q,
		bus:     b,
		client:  client,
		engine:  eng,
		channel: channel,
	}

	// Connectivity restored means queued mutations can drain: every
	// realtime.connected triggers a sync pass.
	b.On(bus.EventConnected, func(any) {
		go func() {
			if _, err := c.engine.Sync(context.Background()); err != nil {
				c.logger.Warn("post-connect sync failed", slog.String("error", err.Error()))
			}
		}()
	})

	// A rewritten credential file means a fresh token; reconnect so the
	// channel authenticates with it. Connect no-ops if already in flight.
	b.On(bus.EventCredentialUpdated, func(any) {
		go c.reconnect()
	})

	return c, nil
}

// Enqueue appends a mutation to the durable queue. It is accepted even
// while offline; transmission happens on the next sync pass.
func (c *Core) Enqueue(ctx context.Context, kind queue.Kind, resource string, payload json.RawMessage) (string, error) {
	return c.queue.Enqueue(ctx, kind, resource, payload)
}

// Sync runs one sync pass, draining the queue in FIFO order. It returns a
// nil report if a pass is already running or the queue is empty.
func (c *Core) Sync(ctx context.Context) (*engine.Report, error) {
	return c.engine.Sync(ctx)
}

// StartPeriodicSync starts background sync passes at the configured
// interval. It is a no-op when the interval is zero (periodic sync
// disabled).
func (c *Core) StartPeriodicSync() {
	interval := c.cfg.Sync.IntervalDuration()
	if interval <= 0 {
		return
	}

	c.engine.StartPeriodic(interval)
}

// StopPeriodicSync stops background sync passes. An in-flight pass
// finishes.
func (c *Core) StopPeriodicSync() {
	c.engine.StopPeriodic()
}

// Queue returns a snapshot of the pending operations in replay order.
func (c *Core) Queue() []queue.Operation {
	return c.queue.Snapshot()
}

// QueueLen returns the number of pending operations.
func (c *Core) QueueLen() int {
	return c.queue.Len()
}

// ClearQueue discards all pending operations.
func (c *Core) ClearQueue(ctx context.Context) error {
	return c.queue.Clear(ctx)
}

// On subscribes fn to an event. Registering the same function twice for
// the same event invokes it once per emission.
func (c *Core) On(event string, fn bus.Handler) {
	c.bus.On(event, fn)
}

// Off removes a previously registered subscription.
func (c *Core) Off(event string, fn bus.Handler) {
	c.bus.Off(event, fn)
}

// Connect establishes the realtime channel. No-op if already connected or
// connecting.
func (c *Core) Connect(ctx context.Context) error {
	return c.channel.Connect(ctx)
}

// Disconnect closes the realtime channel and stops reconnection.
func (c *Core) Disconnect() {
	c.channel.Disconnect()
}

// EmitToServer sends a low-latency event over the realtime channel. Dropped
// when disconnected; durable mutations belong in Enqueue.
func (c *Core) EmitToServer(ctx context.Context, event string, data []byte) error {
	return c.channel.Emit(ctx, event, data)
}

// IsConnected reports whether the realtime channel is connected.
func (c *Core) IsConnected() bool {
	return c.channel.IsConnected()
}

// NotifyCredentialUpdated publishes credential.updated, prompting a
// reconnect with the fresh token. The credential file watcher calls this.
func (c *Core) NotifyCredentialUpdated() {
	c.bus.Emit(bus.EventCredentialUpdated, nil)
}

// Close shuts the Core down: periodic sync stops, the channel disconnects,
// and the store closes. Safe to call more than once.
func (c *Core) Close() error {
	c.closeOnce.Do(func() {
		c.engine.StopPeriodic()
		c.channel.Disconnect()
		c.closeErr = c.store.Close()
	})

	return c.closeErr
}

// reconnect cycles the channel so it authenticates with the latest
// credential.
func (c *Core) reconnect() {
	c.channel.Disconnect()

	if err := c.channel.Connect(context.Background()); err != nil {
		c.logger.Warn("reconnect with updated credential failed", slog.String("error", err.Error()))
	}
}
