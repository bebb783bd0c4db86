// Package queue implements the durable operation queue: an ordered log of
// pending mutations awaiting transmission to the backend. The queue is the
// single source of truth for work not yet confirmed by the server — it is
// loaded from the store on startup and the full queue is rewritten after
// every mutation, trading write efficiency for crash consistency (a write
// reflects either the old or the new state, never a partial one).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tempohq/tempo-sync-go/internal/store"
)

// Kind classifies a queued mutation.
type Kind string

// Operation kinds map to HTTP methods at transmission time.
const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// ErrUnknownOperation is returned when an operation ID is not in the queue.
var ErrUnknownOperation = errors.New("queue: unknown operation")

// Operation is a single pending mutation. IDs are assigned at enqueue time
// and stable for the operation's lifetime.
type Operation struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Resource   string          `json:"resource"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
}

// Storage is the durable backend the queue persists itself to. Satisfied by
// *store.Store.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Queue holds pending operations in FIFO order. All mutations are
// mutex-serialized so one mutation (including its persistence write)
// completes before the next begins.
type Queue struct {
	mu      sync.Mutex
	ops     []Operation
	storage Storage
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// New creates a Queue and loads any persisted operations from storage.
// A load fault falls back to an empty queue rather than blocking startup;
// the fault is logged and the persisted copy is overwritten on the next
// mutation.
func New(ctx context.Context, storage Storage, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{storage: storage, logger: logger, nowFunc: time.Now}

	data, err := storage.Get(ctx, store.KeyOperationQueue)

	switch {
	case errors.Is(err, store.ErrNotFound):
		// First run, nothing persisted yet.
	case err != nil:
		logger.Warn("loading persisted queue failed, starting empty",
			slog.String("error", err.Error()),
		)
	default:
		if unmarshalErr := json.Unmarshal(data, &q.ops); unmarshalErr != nil {
			logger.Warn("persisted queue is corrupt, starting empty",
				slog.String("error", unmarshalErr.Error()),
			)

			q.ops = nil
		}
	}

	if len(q.ops) > 0 {
		logger.Info("loaded persisted operation queue", slog.Int("pending", len(q.ops)))
	}

	return q
}

// Enqueue appends a new operation and persists the queue. The operation is
// queued even when the persistence write fails — the save error is returned
// for observability and the write is retried on the next mutation, which
// always rewrites the full current queue.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, resource string, payload json.RawMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	op := Operation{
		ID:         uuid.NewString(),
		Kind:       kind,
		Resource:   resource,
		Payload:    payload,
		EnqueuedAt: q.nowFunc().UTC(),
	}

	q.ops = append(q.ops, op)

	return op.ID, q.persistLocked(ctx)
}

// Ack removes the operation acknowledged by the backend and persists.
// Acknowledging an unknown ID is a no-op.
func (q *Queue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return nil
	}

	q.ops = append(q.ops[:idx], q.ops[idx+1:]...)

	return q.persistLocked(ctx)
}

// IncrementAttempts bumps the attempt counter for the operation and
// persists. Returns the new attempt count.
func (q *Queue) IncrementAttempts(ctx context.Context, id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return 0, ErrUnknownOperation
	}

	q.ops[idx].Attempts++

	return q.ops[idx].Attempts, q.persistLocked(ctx)
}

// Drop removes the operation without acknowledgment — used when an
// operation exhausts its transmission attempts. Returns the dropped
// operation so the caller can surface the terminal failure.
func (q *Queue) Drop(ctx context.Context, id string) (Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return Operation{}, ErrUnknownOperation
	}

	dropped := q.ops[idx]
	q.ops = append(q.ops[:idx], q.ops[idx+1:]...)

	return dropped, q.persistLocked(ctx)
}

// Snapshot returns a copy of the queue in insertion order. The sync engine
// iterates the snapshot so it never holds the queue lock across network
// calls, and operations enqueued mid-pass defer to the next pass.
func (q *Queue) Snapshot() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := make([]Operation, len(q.ops))
	copy(snap, q.ops)

	return snap
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ops)
}

// Clear empties the queue and persists. Used for explicit user-initiated
// reset such as logout.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = nil

	return q.persistLocked(ctx)
}

// persistLocked writes the full queue to storage. Callers hold q.mu.
// A failed save is logged and returned but never removes queued work;
// the next mutation rewrites the complete current state.
func (q *Queue) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(q.ops)
	if err != nil {
		return fmt.Errorf("queue: encoding queue: %w", err)
	}

	if err := q.storage.Put(ctx, store.KeyOperationQueue, data); err != nil {
		q.logger.Warn("persisting queue failed, will retry on next mutation",
			slog.String("error", err.Error()),
			slog.Int("pending", len(q.ops)),
		)

		return fmt.Errorf("queue: persisting queue: %w", err)
	}

	return nil
}

// indexLocked returns the position of id, or -1. Callers hold q.mu.
func (q *Queue) indexLocked(id string) int {
	for i := range q.ops {
		if q.ops[i].ID == id {
			return i
		}
	}

	return -1
}
