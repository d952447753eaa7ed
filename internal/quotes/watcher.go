package quotes

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatcherConfig configures the file watcher
type WatcherConfig struct {
	// Files are the paths whose changes trigger a reload
	Files []string

	// DebounceDelay is how long to wait for more writes before reloading
	DebounceDelay time.Duration

	// OnChange is called once per settled burst of changes
	OnChange func(paths []string)

	Logger *zap.Logger
}

// Watcher reloads site data when the files change on disk, e.g. after
// `drift weight` rewrites quotes.json while the server is running.
type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	files   map[string]bool

	pendingMu sync.Mutex
	pending   map[string]bool

	done chan struct{}
}

// NewWatcher creates a watcher on the parent directories of the files.
// Directories are watched rather than files so atomic renames are seen.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 200 * time.Millisecond
	}

	w := &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		files:   make(map[string]bool),
		pending: make(map[string]bool),
		done:    make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, f := range config.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then closes the watcher
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()

	timer := time.NewTimer(w.config.DebounceDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.pendingMu.Lock()
			w.pending[filepath.Clean(event.Name)] = true
			w.pendingMu.Unlock()
			timer.Reset(w.config.DebounceDelay)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))

		case <-timer.C:
			w.flush()
		}
	}
}

// Done is closed after Run returns
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.pendingMu.Unlock()

	if len(paths) == 0 || w.config.OnChange == nil {
		return
	}
	w.logger.Debug("site files changed", zap.Strings("paths", paths))
	w.config.OnChange(paths)
}
