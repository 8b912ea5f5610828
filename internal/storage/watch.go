package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// TableWatcher reports changes to a single table document.
//
// Saves replace the document with a rename, so the containing directory is
// watched and events are filtered by file name.
type TableWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	limiter *rate.Limiter
}

// WatchTable starts watching the document at path. Notifications are
// coalesced to at most one per interval.
func WatchTable(path string, interval time.Duration) (*TableWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &TableWatcher{
		path:    filepath.Clean(path),
		watcher: w,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}, nil
}

// Run calls fn after each change until ctx is canceled or the watcher is
// closed. It closes the watcher before returning.
func (tw *TableWatcher) Run(ctx context.Context, fn func()) error {
	defer func() { _ = tw.watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-tw.watcher.Events:
			if !ok {
				return nil
			}
			if !tw.relevant(ev) {
				continue
			}
			if err := tw.limiter.Wait(ctx); err != nil {
				return err
			}
			tw.drain()
			fn()
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Watching table failed", "path", tw.path, "err", err)
		}
	}
}

// Close stops the watcher. Run returns once it observes the closed channels.
func (tw *TableWatcher) Close() error {
	return tw.watcher.Close()
}

func (tw *TableWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != tw.path {
		return false
	}
	return ev.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove)
}

// drain discards events already queued; the pending call to fn covers them.
func (tw *TableWatcher) drain() {
	for {
		select {
		case _, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
