package catalog

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the catalog file at path and replaces the catalog contents
// each time the file is rewritten. It blocks until ctx is cancelled.
//
// A failed reload (missing file, invalid YAML, failed validation) is logged
// and the previous catalog stays active.
func (c *Catalog) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("catalog: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save atomically via rename, so a change can
			// surface as Create rather than Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			vehicles, err := LoadFile(path)
			if err != nil {
				slog.Error("catalog: reload failed, keeping previous catalog",
					"path", path, "err", err)
				continue
			}

			c.Replace(vehicles)
			slog.Info("catalog: reloaded", "path", path, "vehicles", len(vehicles))

			// Re-add the path in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("catalog: watcher error", "err", err)
		}
	}
}
