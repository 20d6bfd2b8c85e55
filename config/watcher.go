package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/offerforge/offerforge/pkg/logger"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes and hands the new
// Config to the registered callbacks. Invalid files are logged and
// skipped; callbacks only ever see a validated Config.
type Watcher struct {
	path     string
	loader   *Loader
	debounce time.Duration
	log      logger.Logger
	fs       *fsnotify.Watcher

	mu        sync.Mutex
	callbacks []func(*Config)

	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger used for reload failures.
func WithWatcherLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path is required for watching")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		path:     path,
		loader:   loader,
		debounce: defaultDebounce,
		log:      logger.Global(),
		fs:       fs,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnChange registers a callback. Callbacks run one after another in
// registration order, on the watch goroutine.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Watch blocks until ctx is done or Stop is called. The parent directory
// is watched so editors that replace the file by rename are seen too.
func (w *Watcher) Watch(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("watcher is already running")
	}
	defer w.running.Store(false)

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
	}
	target := filepath.Clean(w.path)

	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			quiet.Reset(w.debounce)
		case <-quiet.C:
			w.reload(ctx)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cfg, err := w.loader.Load(w.path, nil)
	if err != nil {
		w.log.Error("failed to reload config", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	callbacks := append([](func(*Config))(nil), w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		w.notify(cb, cfg)
	}
}

func (w *Watcher) notify(cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("config callback panic", "panic", r)
		}
	}()
	cb(cfg)
}

// Stop ends Watch and releases the fsnotify handle. Calling it again is
// a no-op.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

// IsRunning reports whether Watch is active.
func (w *Watcher) IsRunning() bool { return w.running.Load() }

// ConfigPath returns the watched file.
func (w *Watcher) ConfigPath() string { return w.path }

// HotReloadableConfig holds the settings a running process picks up from
// a reloaded file.
type HotReloadableConfig struct {
	LogLevel    string
	LogFormat   string
	MaxSessions int
	CacheTTL    time.Duration
}

// ExtractHotReloadable copies the hot-reloadable settings out of cfg.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{
		LogLevel:    cfg.Log.Level,
		LogFormat:   cfg.Log.Format,
		MaxSessions: cfg.Engine.MaxSessions,
		CacheTTL:    cfg.Inventory.Cache.TTL,
	}
}

// Changed reports whether any setting differs.
func (h HotReloadableConfig) Changed(other HotReloadableConfig) bool {
	return h != other
}
