// Package watch reports CI log files that have been written and then left
// alone for a debounce period.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/newhook/runlens/internal/logging"
	"github.com/newhook/runlens/internal/pubsub"
)

// EventType distinguishes watcher notifications.
type EventType string

const (
	// LogReady means a matching file changed and has been quiet for the
	// debounce period.
	LogReady EventType = "log_ready"
	// WatcherError carries an error reported by the file system watcher.
	WatcherError EventType = "watcher_error"
)

// WatcherEvent is the payload published on the broker.
type WatcherEvent struct {
	Type EventType
	Path string
	Err  error
}

// Config configures a Watcher.
type Config struct {
	// Dir is the directory watched recursively.
	Dir string
	// Pattern is a doublestar glob matched against paths relative to Dir.
	Pattern string
	// DebounceDur is how long a file must stay quiet before it is reported.
	DebounceDur time.Duration
	// Ignore lists directories whose contents are never reported.
	Ignore []string
}

// DefaultConfig returns the defaults for watching dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		Pattern:     "**/*.log",
		DebounceDur: 500 * time.Millisecond,
	}
}

// Watcher watches a directory tree for log files.
type Watcher struct {
	cfg    Config
	fsw    *fsnotify.Watcher
	broker *pubsub.Broker[WatcherEvent]
	log    *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer

	done     chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
}

// New validates cfg and prepares a watcher. Call Start to begin delivering
// events.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultConfig(cfg.Dir).Pattern
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", cfg.Pattern)
	}
	if cfg.DebounceDur <= 0 {
		cfg.DebounceDur = DefaultConfig(cfg.Dir).DebounceDur
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cfg.Dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	cfg.Dir = dir
	for i, ig := range cfg.Ignore {
		if abs, err := filepath.Abs(ig); err == nil {
			cfg.Ignore[i] = abs
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		broker:  pubsub.NewBroker[WatcherEvent](),
		log:     logging.With("component", "watch", "dir", cfg.Dir),
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Broker returns the broker events are published on.
func (w *Watcher) Broker() *pubsub.Broker[WatcherEvent] {
	return w.broker
}

// Dir returns the absolute watched directory.
func (w *Watcher) Dir() string {
	return w.cfg.Dir
}

// Start registers the directory tree with the file system watcher and
// starts the event loop.
func (w *Watcher) Start() error {
	if err := w.addTree(w.cfg.Dir, false); err != nil {
		return err
	}
	w.started = true
	w.wg.Add(1)
	go w.loop()
	w.log.Debug("watcher started", "pattern", w.cfg.Pattern, "debounce", w.cfg.DebounceDur)
	return nil
}

// Stop stops the watcher, drops pending notifications and closes every
// subscription. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		if w.started {
			w.wg.Wait()
		}

		w.mu.Lock()
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()

		w.broker.Shutdown()
	})
	return err
}

// addTree watches root and every directory below it that is not ignored.
// With scan set, matching files already present are scheduled too, so
// files written into a new directory before it was watched are not lost.
func (w *Watcher) addTree(root string, scan bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			if scan && w.Matches(path) {
				w.schedule(path)
			}
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, ig := range w.cfg.Ignore {
		if path == ig || strings.HasPrefix(path, ig+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Matches reports whether path (absolute or relative to the watched
// directory) is a file the watcher reports.
func (w *Watcher) Matches(path string) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.cfg.Dir, path)
	}
	if w.ignored(path) {
		return false
	}
	rel, err := filepath.Rel(w.cfg.Dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	ok, err := doublestar.Match(w.cfg.Pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "error", err)
			w.broker.Publish(pubsub.UpdatedEvent, WatcherEvent{Type: WatcherError, Err: err})
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.cancel(path)
		return

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addTree(path, true); err != nil {
				w.log.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	case !event.Has(fsnotify.Write):
		return
	}

	if w.Matches(path) {
		w.schedule(path)
	}
}

// schedule (re)starts the quiet period for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.cfg.DebounceDur)
		return
	}
	w.pending[path] = time.AfterFunc(w.cfg.DebounceDur, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.log.Debug("log ready", "path", path)
		w.broker.Publish(pubsub.UpdatedEvent, WatcherEvent{Type: LogReady, Path: path})
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}
