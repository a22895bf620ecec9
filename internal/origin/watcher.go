package origin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

var errWatcherClosed = errors.New("watcher closed")

// Watcher triggers a rescan when the watched directories change. Events
// arriving within the debounce window collapse into one rescan.
type Watcher struct {
	dirs     []string
	debounce time.Duration
	rescan   func(ctx context.Context)
	log      *slog.Logger
}

// NewWatcher watches dirs (not recursively) and calls rescan after each burst.
func NewWatcher(dirs []string, debounce time.Duration, rescan func(ctx context.Context), log *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		dirs:     dirs,
		debounce: debounce,
		rescan:   rescan,
		log:      log.With("component", "watcher"),
	}
}

// Serve implements suture.Service.
func (w *Watcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.log.Info("watching", slog.Any("dirs", w.dirs))

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return errWatcherClosed
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			w.log.Debug("change detected", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return errWatcherClosed
			}
			w.log.Warn("watch error", slog.Any("error", err))

		case <-timer.C:
			w.rescan(ctx)
		}
	}
}

func (w *Watcher) String() string { return "watcher" }
