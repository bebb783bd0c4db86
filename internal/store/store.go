// Package store provides durable local key-value persistence backed by
// SQLite. The operation queue is serialized under a single fixed key so a
// write is atomic at the row level: a crash leaves either the old or the
// new queue state, never a partial one.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Fixed keys used by the sync core.
const (
	// KeyOperationQueue holds the serialized pending-operation queue.
	KeyOperationQueue = "operation_queue"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

const (
	sqlGetValue = `SELECT value FROM kv WHERE key = ?`

	sqlPutValue = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 value = excluded.value,
		 updated_at = excluded.updated_at`

	sqlDeleteValue = `DELETE FROM kv WHERE key = ?`
)

// Store is the sole writer to the local state database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if necessary) the SQLite database at dbPath, runs
// migrations, and returns a ready-to-use Store. WAL mode with
// synchronous=FULL provides crash-safe durability.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.QueryRowContext(ctx, sqlGetValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", key, err)
	}

	return value, nil
}

// Put writes value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, sqlPutValue, key, value, s.nowFunc().UTC().Unix()); err != nil {
		return fmt.Errorf("store: writing %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteValue, key); err != nil {
		return fmt.Errorf("store: deleting %s: %w", key, err)
	}

	return nil
}
