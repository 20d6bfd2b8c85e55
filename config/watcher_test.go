package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/offerforge/offerforge/pkg/logger"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

// newTestWatcher writes body to a fresh config file and watches it.
func newTestWatcher(t *testing.T, body string, opts ...WatcherOption) (*Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, body)

	opts = append([]WatcherOption{WithWatcherLogger(logger.Nop())}, opts...)
	w, err := NewWatcher(path, NewLoader(WithDotEnv()), opts...)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w, path
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestNewWatcher(t *testing.T) {
	if _, err := NewWatcher("", NewLoader()); err == nil {
		t.Fatal("expected error for empty config path")
	}

	w, path := newTestWatcher(t, "app:\n  name: test\n", WithDebounce(100*time.Millisecond))
	if w.ConfigPath() != path {
		t.Errorf("ConfigPath() = %s, want %s", w.ConfigPath(), path)
	}
	if w.debounce != 100*time.Millisecond {
		t.Errorf("debounce = %v, want 100ms", w.debounce)
	}

	w, _ = newTestWatcher(t, "app:\n  name: test\n")
	if w.debounce != defaultDebounce {
		t.Errorf("default debounce = %v", w.debounce)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	w, path := newTestWatcher(t, "log:\n  level: info\n", WithDebounce(50*time.Millisecond))

	var (
		mu     sync.Mutex
		levels []string
	)
	w.OnChange(func(cfg *Config) {
		mu.Lock()
		levels = append(levels, cfg.Log.Level)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() { _ = w.Watch(ctx) }()
	if !waitFor(t, time.Second, w.IsRunning) {
		t.Fatal("watcher never started")
	}
	time.Sleep(50 * time.Millisecond)

	writeConfig(t, path, "log:\n  level: debug\n")

	got := waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) > 0
	})
	if !got {
		t.Fatal("callback was not called after the file changed")
	}
	mu.Lock()
	defer mu.Unlock()
	if last := levels[len(levels)-1]; last != "debug" {
		t.Errorf("reloaded log level = %q, want debug", last)
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	w, path := newTestWatcher(t, "app:\n  name: test\n", WithDebounce(20*time.Millisecond))

	var mu sync.Mutex
	calls := 0
	w.OnChange(func(*Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()
	waitFor(t, time.Second, w.IsRunning)
	time.Sleep(50 * time.Millisecond)

	writeConfig(t, filepath.Join(filepath.Dir(path), "other.yaml"), "x: 1\n")
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("callbacks ran %d times for an unrelated file", calls)
	}
}

func TestWatcher_Lifecycle(t *testing.T) {
	t.Run("context cancel", func(t *testing.T) {
		w, _ := newTestWatcher(t, "app:\n  name: test\n")
		ctx, cancel := context.WithCancel(context.Background())

		errc := make(chan error, 1)
		go func() { errc <- w.Watch(ctx) }()
		waitFor(t, time.Second, w.IsRunning)
		cancel()

		select {
		case err := <-errc:
			if err != context.Canceled {
				t.Errorf("Watch() = %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("watcher did not stop on context cancel")
		}
	})

	t.Run("double watch", func(t *testing.T) {
		w, _ := newTestWatcher(t, "app:\n  name: test\n")
		go func() { _ = w.Watch(context.Background()) }()
		if !waitFor(t, time.Second, w.IsRunning) {
			t.Fatal("watcher never started")
		}
		if err := w.Watch(context.Background()); err == nil {
			t.Error("expected error when starting a second watch")
		}
	})

	t.Run("stop", func(t *testing.T) {
		w, _ := newTestWatcher(t, "app:\n  name: test\n")
		go func() { _ = w.Watch(context.Background()) }()
		if !waitFor(t, time.Second, w.IsRunning) {
			t.Fatal("watcher never started")
		}
		if err := w.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if !waitFor(t, time.Second, func() bool { return !w.IsRunning() }) {
			t.Error("watcher still running after Stop")
		}
		if err := w.Stop(); err != nil {
			t.Errorf("second Stop() error = %v", err)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		w, err := NewWatcher("/nonexistent/offerforge/config.yaml", NewLoader())
		if err != nil {
			t.Fatalf("NewWatcher() error = %v", err)
		}
		defer w.Stop()
		if err := w.Watch(context.Background()); err == nil {
			t.Error("expected error when watching a missing directory")
		}
	})
}

func TestWatcher_Reload(t *testing.T) {
	t.Run("callbacks run in order", func(t *testing.T) {
		w, _ := newTestWatcher(t, "app:\n  name: test\n")
		var order []int
		w.OnChange(func(*Config) { order = append(order, 1) })
		w.OnChange(func(*Config) { panic("boom") })
		w.OnChange(func(*Config) { order = append(order, 3) })

		w.reload(context.Background())

		if len(order) != 2 || order[0] != 1 || order[1] != 3 {
			t.Errorf("callback order = %v, want [1 3]", order)
		}
	})

	t.Run("invalid file keeps callbacks silent", func(t *testing.T) {
		w, _ := newTestWatcher(t, "server:\n  port: 0\n")
		called := false
		w.OnChange(func(*Config) { called = true })

		w.reload(context.Background())

		if called {
			t.Error("callbacks must not run for an invalid config")
		}
	})

	t.Run("cancelled context skips reload", func(t *testing.T) {
		w, _ := newTestWatcher(t, "app:\n  name: test\n")
		called := false
		w.OnChange(func(*Config) { called = true })

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w.reload(ctx)

		if called {
			t.Error("reload ran after cancellation")
		}
	})
}

func TestHotReloadableConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Log.Format = "text"
	cfg.Engine.MaxSessions = 42
	cfg.Inventory.Cache.TTL = time.Minute

	want := HotReloadableConfig{LogLevel: "debug", LogFormat: "text", MaxSessions: 42, CacheTTL: time.Minute}
	if got := ExtractHotReloadable(cfg); got != want {
		t.Fatalf("ExtractHotReloadable() = %+v, want %+v", got, want)
	}

	tests := []struct {
		name   string
		mutate func(*HotReloadableConfig)
		want   bool
	}{
		{"no changes", func(*HotReloadableConfig) {}, false},
		{"log level", func(h *HotReloadableConfig) { h.LogLevel = "warn" }, true},
		{"log format", func(h *HotReloadableConfig) { h.LogFormat = "json" }, true},
		{"max sessions", func(h *HotReloadableConfig) { h.MaxSessions = 5 }, true},
		{"cache ttl", func(h *HotReloadableConfig) { h.CacheTTL = time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := want
			tt.mutate(&next)
			if got := want.Changed(next); got != tt.want {
				t.Errorf("Changed() = %v, want %v", got, tt.want)
			}
		})
	}
}
