package keysource

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/signgate/internal/observability"
)

// DefaultDebounceDelay coalesces bursts of writes to the watched file.
const DefaultDebounceDelay = 100 * time.Millisecond

// ReloadFunc is called after the watched file settles.
type ReloadFunc func(ctx context.Context) error

// ErrorCallback is called on reload and watch errors.
type ErrorCallback func(error)

// FileWatcher calls a ReloadFunc whenever a file is written or recreated.
type FileWatcher struct {
	path          string
	watcher       *fsnotify.Watcher
	reload        ReloadFunc
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// WatcherOption configures a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithDebounceDelay sets the debounce delay.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = delay
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *FileWatcher) {
		w.errorCallback = callback
	}
}

// NewFileWatcher creates a watcher for path.
func NewFileWatcher(path string, reload ReloadFunc, opts ...WatcherOption) (*FileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &FileWatcher{
		path:          absPath,
		watcher:       fsWatcher,
		reload:        reload,
		debounceDelay: DefaultDebounceDelay,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the directory of the file, so editors that replace the
// file by rename are seen too.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.running = true

	w.logger.Info("watching keys file",
		observability.String("path", w.path),
	)

	go w.watch(ctx)
	return nil
}

// Stop stops watching and releases the watcher.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

func (w *FileWatcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("keys file changed",
				observability.String("path", event.Name),
				observability.String("op", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.fire(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("keys file watcher error", observability.Error(err))
			w.notify(err)
		}
	}
}

func (w *FileWatcher) relevant(event fsnotify.Event) bool {
	return filepath.Clean(event.Name) == w.path &&
		event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (w *FileWatcher) fire(ctx context.Context) {
	w.logger.Info("reloading keys file", observability.String("path", w.path))

	if err := w.reload(ctx); err != nil {
		w.logger.Error("keys file reload failed, keeping current keys",
			observability.Error(err),
		)
		w.notify(err)
	}
}

func (w *FileWatcher) notify(err error) {
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}
