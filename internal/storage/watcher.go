package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events a publish produces.
const DefaultDebounce = 250 * time.Millisecond

// Watcher calls OnPublish whenever the CURRENT pointer in a snapshot root is
// replaced. It only watches the pointer, so snapshot directories being written
// never trigger a reload.
type Watcher struct {
	root      string
	onPublish func()
	debounce  time.Duration
	logger    *slog.Logger
}

// NewWatcher creates a watcher for root. A nil logger uses slog.Default().
func NewWatcher(root string, onPublish func(), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:      root,
		onPublish: onPublish,
		debounce:  DefaultDebounce,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.logger.Info("Watching snapshot root", "root", w.root)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != CurrentFile {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.onPublish()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Snapshot watcher error", "error", err)
		}
	}
}
