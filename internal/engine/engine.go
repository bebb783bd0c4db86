// Package engine implements the sync engine: it drains the durable
// operation queue against the backend, one bounded pass at a time, with
// per-operation retry accounting. Connectivity restoration and a periodic
// timer are the two triggers; both funnel into the same Sync entry point.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tempohq/tempo-sync-go/internal/api"
	"github.com/tempohq/tempo-sync-go/internal/bus"
	"github.com/tempohq/tempo-sync-go/internal/queue"
)

// DefaultMaxAttempts bounds transmission attempts per operation before it
// is dropped as a terminal failure.
const DefaultMaxAttempts = 5

// Transmitter performs one network transmission. Satisfied by *api.Client.
type Transmitter interface {
	Send(ctx context.Context, method, resource string, payload json.RawMessage) error
}

// Publisher is the notification side of the event bus. Satisfied by *bus.Bus.
type Publisher interface {
	Emit(event string, data any)
}

// Config holds the options for New.
type Config struct {
	Queue       *queue.Queue
	Transmitter Transmitter
	Bus         Publisher
	MaxAttempts int // 0 → DefaultMaxAttempts
	Logger      *slog.Logger
}

// Report summarizes one sync pass. It is the payload of the sync.complete
// notification; TerminalFailures is the observable count of dropped
// mutations — never silent data loss.
type Report struct {
	Attempted        int           `json:"attempted"`
	Succeeded        int           `json:"succeeded"`
	Deferred         int           `json:"deferred"` // still queued for the next pass
	TerminalFailures int           `json:"terminal_failures"`
	Duration         time.Duration `json:"duration"`
}

// Engine replays the operation queue against the backend. A pass can only
// start from idle; while one is running, further Sync calls are no-ops.
type Engine struct {
	queue       *queue.Queue
	transmitter Transmitter
	bus         Publisher
	maxAttempts int
	logger      *slog.Logger

	mu      sync.Mutex
	syncing bool

	timerMu   sync.Mutex
	stopTimer context.CancelFunc
}

// New creates an Engine.
func New(cfg *Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Engine{
		queue:       cfg.Queue,
		transmitter: cfg.Transmitter,
		bus:         cfg.Bus,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// methodFor maps an operation kind to its HTTP method.
func methodFor(kind queue.Kind) string {
	switch kind {
	case queue.KindCreate:
		return http.MethodPost
	case queue.KindUpdate:
		return http.MethodPut
	case queue.KindDelete:
		return http.MethodDelete
	default:
		return http.MethodPost
	}
}

// Sync runs one pass over a snapshot of the queue. Calling Sync while a
// pass is running, or with an empty queue, returns (nil, nil) immediately —
// repeated calls are always safe. Operations enqueued during the pass are
// deferred to the next one, bounding pass duration under continuous
// enqueue.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.syncing || e.queue.Len() == 0 {
		e.mu.Unlock()
		return nil, nil
	}

	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	start := time.Now()
	snapshot := e.queue.Snapshot()

	e.logger.Info("sync pass starting", slog.Int("pending", len(snapshot)))
	e.bus.Emit(bus.EventSyncStarted, len(snapshot))

	report := &Report{Attempted: len(snapshot)}

	for i := range snapshot {
		// A canceled context aborts the pass; remaining operations stay
		// queued untouched rather than consuming attempts.
		if ctx.Err() != nil {
			report.Attempted = i
			break
		}

		e.transmitOne(ctx, &snapshot[i], report)
	}

	report.Duration = time.Since(start)

	e.logger.Info("sync pass complete",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("deferred", report.Deferred),
		slog.Int("terminal_failures", report.TerminalFailures),
		slog.Duration("duration", report.Duration),
	)

	e.bus.Emit(bus.EventSyncComplete, report)

	return report, nil
}

// transmitOne attempts exactly one transmission for op, updating the queue
// and the report. Failures are isolated per operation — they never abort
// the pass or stall later, independent operations.
func (e *Engine) transmitOne(ctx context.Context, op *queue.Operation, report *Report) {
	err := e.transmitter.Send(ctx, methodFor(op.Kind), op.Resource, op.Payload)
	if err == nil {
		if ackErr := e.queue.Ack(ctx, op.ID); ackErr != nil {
			e.logger.Warn("acknowledged operation not persisted",
				slog.String("operation_id", op.ID),
				slog.String("error", ackErr.Error()),
			)
		}

		report.Succeeded++

		return
	}

	if ctx.Err() != nil {
		// Cancellation mid-transmission: leave the operation as-is.
		report.Deferred++
		return
	}

	if !api.IsRetryable(err) {
		e.logger.Warn("operation rejected by server, dropping",
			slog.String("operation_id", op.ID),
			slog.String("resource", op.Resource),
			slog.String("error", err.Error()),
		)

		e.dropTerminal(ctx, op.ID, report)

		return
	}

	attempts, incErr := e.queue.IncrementAttempts(ctx, op.ID)
	if incErr != nil {
		e.logger.Warn("recording attempt failed",
			slog.String("operation_id", op.ID),
			slog.String("error", incErr.Error()),
		)
	}

	if attempts >= e.maxAttempts {
		e.logger.Warn("operation exhausted attempts, dropping",
			slog.String("operation_id", op.ID),
			slog.String("resource", op.Resource),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)

		e.dropTerminal(ctx, op.ID, report)

		return
	}

	e.logger.Debug("transmission failed, deferring to next pass",
		slog.String("operation_id", op.ID),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)

	report.Deferred++
}

// dropTerminal removes the operation from the active queue and surfaces the
// terminal failure on the bus.
func (e *Engine) dropTerminal(ctx context.Context, id string, report *Report) {
	dropped, err := e.queue.Drop(ctx, id)
	if err != nil {
		e.logger.Warn("dropping failed operation",
			slog.String("operation_id", id),
			slog.String("error", err.Error()),
		)

		return
	}

	report.TerminalFailures++
	e.bus.Emit(bus.EventSyncOperationFailed, dropped)
}

// StartPeriodic begins automatic sync passes at the given interval. Any
// previously running timer is stopped first, so repeated calls never stack
// tickers.
func (e *Engine) StartPeriodic(interval time.Duration) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	e.stopTimerLocked()

	ctx, cancel := context.WithCancel(context.Background())
	e.stopTimer = cancel

	e.logger.Info("periodic sync started", slog.Duration("interval", interval))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Passes run on a background context: stopping the timer
				// stops future passes but lets an in-flight one finish.
				if _, err := e.Sync(context.Background()); err != nil {
					e.logger.Warn("periodic sync pass failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// StopPeriodic cancels the periodic timer. An in-flight pass continues to
// completion.
func (e *Engine) StopPeriodic() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	e.stopTimerLocked()
}

func (e *Engine) stopTimerLocked() {
	if e.stopTimer != nil {
		e.stopTimer()
		e.stopTimer = nil

		e.logger.Info("periodic sync stopped")
	}
}
