package credfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the credential file for rewrites by the auth flow and
// calls onChange for each one. It watches the parent directory because the
// file is replaced via rename, which would orphan a watch on the file
// itself. Blocks until the context is canceled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("credfile: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("credfile: watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}

			logger.Debug("credential file changed", slog.String("op", ev.Op.String()))
			onChange()

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("credential watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
