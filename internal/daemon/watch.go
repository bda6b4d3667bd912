package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/pkg/models"
)

// Watch calls fn with the current status and again every time the status
// file changes, until ctx ends. The directory is watched rather than the
// file because the file is replaced by rename on every write.
func (c *Client) Watch(ctx context.Context, fn func(models.TracerState)) error {
	path := filepath.Clean(c.repo.Path())
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	emit := func() {
		st, err := c.Status(ctx)
		if err != nil {
			c.log.Warn("read tracer state", zap.Error(err))
			return
		}
		fn(st)
	}
	emit()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			emit()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("state watcher error", zap.Error(err))
		}
	}
}
