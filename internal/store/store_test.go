package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(filepath.Join(t.TempDir(), "state.db"), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func TestStore_GetMissingKey(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	_, err := s.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get absent key: err = %v, want ErrNotFound", err)
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, KeyOperationQueue, []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, KeyOperationQueue)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if string(got) != `[{"id":"a"}]` {
		t.Fatalf("Get = %s, want original value", got)
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("one")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := s.Put(ctx, "k", []byte("two")); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if string(got) != "two" {
		t.Fatalf("Get = %s, want %q", got, "two")
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Put(ctx, KeyOperationQueue, []byte("persisted")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, KeyOperationQueue)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}

	if string(got) != "persisted" {
		t.Fatalf("Get after reopen = %s, want %q", got, "persisted")
	}
}
