package confloader

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to one configuration file.
type Watcher struct {
	watcher   *fsnotify.Watcher
	path      string
	debounce  time.Duration
	callbacks []func(string)
	mu        sync.RWMutex
	logger    *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets the quiet period before callbacks fire.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher creates a watcher for path. The parent directory is watched
// so that editors which replace the file by rename are still seen.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// OnChange registers a callback invoked with the file path after a change.
func (w *Watcher) OnChange(callback func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Run delivers change notifications until ctx is cancelled, then closes
// the underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("failed to close config watcher", "error", err)
		}
	}()

	w.logger.Debug("config watcher started", "file", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("config watcher stopped", "file", w.path)
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
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
			w.logger.Info("configuration file changed", "file", w.path)
			w.notify()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) notify() {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, cb := range w.callbacks {
		cb(w.path)
	}
}
