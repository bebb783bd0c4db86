// Package credfile handles reading and writing the credential file. The
// sync core never acquires tokens itself — the product's auth flow writes
// this file and the core consumes it, re-reading at transmission and
// connect time so a refreshed credential is always used.
package credfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// ErrNoCredential is returned when no credential file exists or it holds no
// token. Connect and sync surface this as an explicit failure rather than
// silently running unauthenticated.
var ErrNoCredential = errors.New("credfile: no credential available")

// File is the on-disk format. The token rides alongside optional metadata
// (user ID, workspace) cached by the auth flow.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads the credential file. Returns ErrNoCredential if the file does
// not exist or contains no token.
func Load(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoCredential
	}

	if err != nil {
		return nil, fmt.Errorf("credfile: reading %s: %w", path, err)
	}

	var cf File
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("credfile: decoding %s: %w", path, err)
	}

	if cf.Token == nil || cf.Token.AccessToken == "" {
		return nil, ErrNoCredential
	}

	return cf.Token, nil
}

// Save writes the credential file atomically (write-to-temp + rename) with
// 0600 permissions. Never logs token values.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	cf := File{Token: tok, Meta: meta}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("credfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("credfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss cannot leave an
	// empty or partial credential file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Source adapts a credential file path to the TokenSource interface the API
// client consumes. The file is re-read on every call so token refreshes by
// the auth flow take effect without restarting.
type Source struct {
	Path string
}

// Token returns the current bearer credential.
func (s Source) Token() (string, error) {
	tok, err := Load(s.Path)
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}
