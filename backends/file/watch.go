package file

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gannonmg/lockbox/pkg/notify"
)

type watcher struct {
	fs *fsnotify.Watcher
}

func (w *watcher) close() error {
	return w.fs.Close()
}

// Watch publishes a change event on notifier whenever the namespace
// document is modified on disk, including by other processes. Events carry
// no key: the document is rewritten as a whole, so a modification only says
// that something in the namespace changed. Rapid bursts are debounced.
// Watching stops when ctx is cancelled or the backend is closed.
func (b *Backend) Watch(ctx context.Context, namespace string, notifier *notify.Notifier, logger *slog.Logger) error {
	if notifier == nil {
		return fmt.Errorf("file watch: nil notifier")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file watch: %w", err)
	}

	// Watch the directory, not the document: the document may not exist
	// yet, and rename-based saves replace the inode a file watch would pin.
	if err := fw.Add(b.dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("file watch: %w", err)
	}

	w := &watcher{fs: fw}
	b.watchMu.Lock()
	b.watchers = append(b.watchers, w)
	b.watchMu.Unlock()

	go b.watchLoop(ctx, w, filepath.Base(b.Path(namespace)), notifier, logger)
	return nil
}

func (b *Backend) watchLoop(ctx context.Context, w *watcher, filename string, notifier *notify.Notifier, logger *slog.Logger) {
	// Debounce timer to avoid one event per write syscall
	const debounceDelay = 200 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = w.fs.Close()
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					logger.Debug("namespace document changed on disk", "file", filename)
					notifier.Publish(ctx, notify.SaveEvent())
				})
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Error("file watcher error", "error", err)
		}
	}
}
