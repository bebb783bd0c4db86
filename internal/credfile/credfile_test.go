package credfile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "credential.json"))
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Load missing file: err = %v, want ErrNoCredential", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credential.json")

	tok := &oauth2.Token{
		AccessToken:  "abc123",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}

	if err := Save(path, tok, map[string]string{"user_id": "u-1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.AccessToken != "abc123" {
		t.Fatalf("AccessToken = %q, want %q", loaded.AccessToken, "abc123")
	}

	// File must be owner-only.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if perm := info.Mode().Perm(); perm != FilePerms {
		t.Fatalf("file perms = %o, want %o", perm, FilePerms)
	}
}

func TestLoad_EmptyTokenIsNoCredential(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credential.json")

	if err := os.WriteFile(path, []byte(`{"token":{"access_token":""}}`), FilePerms); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Load empty token: err = %v, want ErrNoCredential", err)
	}
}

func TestSource_ReadsLatestToken(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credential.json")
	src := Source{Path: path}

	if _, err := src.Token(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Token with no file: err = %v, want ErrNoCredential", err)
	}

	if err := Save(path, &oauth2.Token{AccessToken: "first"}, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := src.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	if got != "first" {
		t.Fatalf("Token = %q, want %q", got, "first")
	}

	// A refreshed credential is picked up on the next call, not cached.
	if err := Save(path, &oauth2.Token{AccessToken: "second"}, nil); err != nil {
		t.Fatalf("Save refreshed: %v", err)
	}

	got, err = src.Token()
	if err != nil {
		t.Fatalf("Token after refresh: %v", err)
	}

	if got != "second" {
		t.Fatalf("Token after refresh = %q, want %q", got, "second")
	}
}

func TestWatch_FiresOnRewrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "credential.json")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, logger, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	if err := Save(path, &oauth2.Token{AccessToken: "tok"}, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not fire after credential rewrite")
	}

	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
}
