package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/tempohq/tempo-sync-go/internal/api"
	"github.com/tempohq/tempo-sync-go/internal/bus"
	"github.com/tempohq/tempo-sync-go/internal/queue"
	"github.com/tempohq/tempo-sync-go/internal/store"
)

// memStorage is a minimal in-memory queue.Storage for tests.
type memStorage struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{values: make(map[string][]byte)}
}

func (m *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}

	return v, nil
}

func (m *memStorage) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value

	return nil
}

// sentRequest records one transmission seen by the fake transmitter.
type sentRequest struct {
	Method   string
	Resource string
}

// fakeTransmitter scripts per-resource failures and records every send.
type fakeTransmitter struct {
	mu       sync.Mutex
	sent     []sentRequest
	failures map[string]int // resource → remaining failures
	err      error          // error to return while failures remain
	block    chan struct{}  // if non-nil, Send blocks until closed
}

func newFakeTransmitter() *fakeTransmitter {
	return &fakeTransmitter{failures: make(map[string]int), err: errors.New("connection refused")}
}

func (f *fakeTransmitter) Send(_ context.Context, method, resource string, _ json.RawMessage) error {
	f.mu.Lock()
	block := f.block
	f.sent = append(f.sent, sentRequest{Method: method, Resource: resource})

	if n := f.failures[resource]; n != 0 {
		if n > 0 {
			f.failures[resource] = n - 1
		}

		err := f.err
		f.mu.Unlock()

		return err
	}
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	return nil
}

func (f *fakeTransmitter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, tx Transmitter, maxAttempts int) (*Engine, *queue.Queue, *bus.Bus) {
	t.Helper()

	q := queue.New(context.Background(), newMemStorage(), quietLogger())
	b := bus.New(quietLogger())

	e := New(&Config{
		Queue:       q,
		Transmitter: tx,
		Bus:         b,
		MaxAttempts: maxAttempts,
		Logger:      quietLogger(),
	})

	return e, q, b
}

func TestSync_DrainsQueueInEnqueueOrder(t *testing.T) {
	t.Parallel()

	tx := newFakeTransmitter()
	e, q, _ := newTestEngine(t, tx, 3)
	ctx := context.Background()

	q.Enqueue(ctx, queue.KindCreate, "tasks", []byte(`{"title":"a"}`))
	q.Enqueue(ctx, queue.KindUpdate, "tasks/1", []byte(`{"title":"b"}`))
	q.Enqueue(ctx, queue.KindDelete, "tasks/2", nil)

	report, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if report.Succeeded != 3 || report.TerminalFailures != 0 {
		t.Fatalf("report = %+v, want 3 succeeded", report)
	}

	if q.Len() != 0 {
		t.Fatalf("queue len = %d after full drain, want 0", q.Len())
	}

	want := []sentRequest{
		{http.MethodPost, "tasks"},
		{http.MethodPut, "tasks/1"},
		{http.MethodDelete, "tasks/2"},
	}

	if len(tx.sent) != len(want) {
		t.Fatalf("sent %d requests, want %d", len(tx.sent), len(want))
	}

	for i, w := range want {
		if tx.sent[i] != w {
			t.Fatalf("sent[%d] = %+v, want %+v", i, tx.sent[i], w)
		}
	}
}

func TestSync_EmptyQueueIsNoop(t *testing.T) {
	t.Parallel()

	tx := newFakeTransmitter()
	e, _, b := newTestEngine(t, tx, 3)

	started := 0
	b.On(bus.EventSyncStarted, func(any) { started++ })

	report, err := e.Sync(context.Background())
	if err != nil || report != nil {
		t.Fatalf("Sync empty queue = (%v, %v), want (nil, nil)", report, err)
	}

	if started != 0 {
		t.Fatal("sync.started must not fire for an empty queue")
	}
}

func TestSync_RetriesThenDropsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	const maxAttempts = 3

	tx := newFakeTransmitter()
	tx.failures["tasks"] = -1 // fail forever

	e, q, b := newTestEngine(t, tx, maxAttempts)
	ctx := context.Background()

	var failedOps []queue.Operation

	b.On(bus.EventSyncOperationFailed, func(data any) {
		failedOps = append(failedOps, data.(queue.Operation))
	})

	id, _ := q.Enqueue(ctx, queue.KindCreate, "tasks", []byte(`{}`))

	for pass := 1; pass < maxAttempts; pass++ {
		report, err := e.Sync(ctx)
		if err != nil {
			t.Fatalf("Sync pass %d: %v", pass, err)
		}

		if report.Deferred != 1 || report.TerminalFailures != 0 {
			t.Fatalf("pass %d report = %+v, want deferred", pass, report)
		}

		if got := q.Snapshot()[0].Attempts; got != pass {
			t.Fatalf("attempts after pass %d = %d, want %d", pass, got, pass)
		}
	}

	// Final pass exhausts the budget.
	report, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("final Sync: %v", err)
	}

	if report.TerminalFailures != 1 {
		t.Fatalf("final report = %+v, want 1 terminal failure", report)
	}

	if q.Len() != 0 {
		t.Fatal("exhausted operation must leave the queue")
	}

	if len(failedOps) != 1 || failedOps[0].ID != id {
		t.Fatalf("failure event ops = %+v, want dropped op %s", failedOps, id)
	}
}

func TestSync_TwoFailuresThenSuccess(t *testing.T) {
	t.Parallel()

	tx := newFakeTransmitter()
	tx.failures["tasks"] = 2 // first two attempts fail, third succeeds

	e, q, _ := newTestEngine(t, tx, 5)
	ctx := context.Background()

	q.Enqueue(ctx, queue.KindCreate, "tasks", []byte(`{"title":"X"}`))

	e.Sync(ctx)
	e.Sync(ctx)

	// Immediately before the third attempt the counter reads 2.
	if got := q.Snapshot()[0].Attempts; got != 2 {
		t.Fatalf("attempts before third pass = %d, want 2", got)
	}

	report, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("third Sync: %v", err)
	}

	if report.Succeeded != 1 {
		t.Fatalf("third pass report = %+v, want success", report)
	}

	if q.Len() != 0 {
		t.Fatal("operation must be removed after successful transmission")
	}
}

func TestSync_FailureDoesNotStallLaterOperations(t *testing.T) {
	t.Parallel()

	tx := newFakeTransmitter()
	tx.failures["broken"] = -1

	e, q, _ := newTestEngine(t, tx, 5)
	ctx := context.Background()

	q.Enqueue(ctx, queue.KindCreate, "broken", nil)
	okID, _ := q.Enqueue(ctx, queue.KindCreate, "tasks", nil)

	report, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if report.Succeeded != 1 || report.Deferred != 1 {
		t.Fatalf("report = %+v, want 1 succeeded 1 deferred", report)
	}

	for _, op := range q.Snapshot() {
		if op.ID == okID {
			t.Fatal("successful operation must not remain queued")
		}
	}
}

func TestSync_NonRetryableDropsImmediately(t *testing.T) {
	t.Parallel()

	tx := newFakeTransmitter()
	tx.failures["tasks"] = -1
	tx.err = &api.Error{StatusCode: http.StatusUnprocessableEntity, Message: "validation failed"}

	e, q, b := newTestEngine(t, tx, 5)
	ctx := context.Background()

	failures := 0
	b.On(bus.EventSyncOperationFailed, func(any) { failures++ })

	q.Enqueue(ctx, queue.KindCreate, "tasks", []byte(`{}`))

	report, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if report.TerminalFailures != 1 || q.Len() != 0 || failures != 1 {
		t.Fatalf("report = %+v, queue len = %d, failure events = %d; want immediate terminal drop",
			report, q.Len(), failures)
	}
}

func TestSync_ConcurrentCallIsNoop(t *testing.T) {
	t.Parallel()

	tx := newFakeTransmitter()
	tx.block = make(chan struct{})

	e, q, b := newTestEngine(t, tx, 3)
	ctx := context.Background()

	passes := 0
	b.On(bus.EventSyncStarted, func(any) { passes++ })

	q.Enqueue(ctx, queue.KindCreate, "tasks", nil)

	done := make(chan struct{})

	go func() {
		defer close(done)
		e.Sync(ctx)
	}()

	// Wait for the first pass to reach the blocked transmitter.
	for tx.sentCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Second call while syncing must be a no-op.
	report, err := e.Sync(ctx)
	if err != nil || report != nil {
		t.Fatalf("concurrent Sync = (%v, %v), want (nil, nil)", report, err)
	}

	close(tx.block)
	<-done

	if passes != 1 {
		t.Fatalf("sync.started fired %d times, want 1", passes)
	}
}

func TestSync_EnqueueDuringPassDefersToNextPass(t *testing.T) {
	t.Parallel()

	tx := newFakeTransmitter()
	tx.block = make(chan struct{})

	e, q, _ := newTestEngine(t, tx, 3)
	ctx := context.Background()

	q.Enqueue(ctx, queue.KindCreate, "tasks", nil)

	done := make(chan struct{})

	go func() {
		defer close(done)
		e.Sync(ctx)
	}()

	for tx.sentCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Enqueued mid-pass: must not join the in-flight snapshot.
	q.Enqueue(ctx, queue.KindCreate, "notes", nil)

	close(tx.block)
	<-done

	if got := tx.sentCount(); got != 1 {
		t.Fatalf("pass transmitted %d operations, want 1 (snapshot only)", got)
	}

	if q.Len() != 1 {
		t.Fatalf("queue len = %d, want the deferred operation", q.Len())
	}
}

func TestPeriodic_StartStopAndNoStacking(t *testing.T) {
	t.Parallel()

	tx := newFakeTransmitter()
	e, q, _ := newTestEngine(t, tx, 3)
	ctx := context.Background()

	q.Enqueue(ctx, queue.KindCreate, "tasks", nil)

	// Starting twice replaces the first timer instead of stacking.
	e.StartPeriodic(10 * time.Millisecond)
	e.StartPeriodic(10 * time.Millisecond)

	deadline := time.After(2 * time.Second)
	for q.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("periodic sync never drained the queue")
		case <-time.After(5 * time.Millisecond):
		}
	}

	e.StopPeriodic()

	// After stop, new work stays queued.
	q.Enqueue(ctx, queue.KindCreate, "notes", nil)
	time.Sleep(50 * time.Millisecond)

	if q.Len() != 1 {
		t.Fatalf("queue len = %d after StopPeriodic, want 1", q.Len())
	}

	// Stop is idempotent.
	e.StopPeriodic()
}
