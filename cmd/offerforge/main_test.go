package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerforge/offerforge/config"
	"github.com/offerforge/offerforge/pkg/api"
	"github.com/offerforge/offerforge/pkg/api/handlers"
	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/inventory"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/metrics"
	"github.com/offerforge/offerforge/pkg/storage/badger"
	"github.com/offerforge/offerforge/pkg/storage/memory"
)

const testCatalog = `
hotels:
  - id: h1
    city: Lisbon
    display:
      name: Alfama Suites
    pricing:
      sellingPrice: 120
      currency: EUR
`

func TestServerStartup(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{
			Name:        "test",
			Environment: "test",
		},
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			HTTP: config.HTTPConfig{
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
			},
			CORS: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"*"},
			},
		},
		Log: config.LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}

	log := logger.New(&logger.Config{
		Level:  logger.InfoLevel,
		Format: "json",
		Writer: io.Discard,
	})

	ctx := context.Background()
	eng, err := engine.New(engine.Config{Name: cfg.App.Name}, inventory.NewCatalogProvider(inventory.Catalog{}),
		engine.WithStorage(memory.NewMemoryStorage()),
		engine.WithLogger(log),
	)
	require.NoError(t, err)
	require.NoError(t, eng.Start(ctx))
	defer eng.Stop(ctx)

	httpServer := api.NewHTTPServer(cfg, log, &api.Handlers{
		Journey: handlers.NewJourneyHandler(eng, log),
		Offer:   handlers.NewOfferHandler(eng, log),
		Health:  handlers.NewHealthHandler(eng),
	})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- httpServer.Serve(lis)
	}()

	base := fmt.Sprintf("http://%s", lis.Addr().String())
	for _, path := range []string{"/health", "/ready", "/status", "/api/v1/offers"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Post(base+"/api/v1/journeys", "application/json", strings.NewReader(`{"product_type":"hotel"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, eng.SessionCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, httpServer.Shutdown(shutdownCtx))

	select {
	case err := <-serverErrChan:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Error("server did not return after shutdown")
	}
}

func TestBuildOverrides(t *testing.T) {
	origAppName := *appName
	origServerPort := *serverPort
	origLogLevel := *logLevel
	origStorage := *storageType
	origDebugMode := *debugMode

	defer func() {
		*appName = origAppName
		*serverPort = origServerPort
		*logLevel = origLogLevel
		*storageType = origStorage
		*debugMode = origDebugMode
	}()

	*appName = ""
	*serverPort = 0
	*logLevel = ""
	*storageType = ""
	*debugMode = false

	assert.Empty(t, buildOverrides())

	*appName = "test-app"
	*serverPort = 9090
	*logLevel = "debug"
	*storageType = "badger"
	*debugMode = true

	overrides := buildOverrides()
	assert.Len(t, overrides, 5)
	assert.Equal(t, "test-app", overrides["app.name"])
	assert.Equal(t, 9090, overrides["server.port"])
	assert.Equal(t, "debug", overrides["log.level"])
	assert.Equal(t, "badger", overrides["storage.type"])
	assert.Equal(t, true, overrides["app.debug"])
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func TestPrintVersion(t *testing.T) {
	output := captureStdout(t, printVersion)
	for _, expected := range []string{"Offerforge", "Version:", "Build Time:", "Git Commit:", "Go Version:"} {
		assert.Contains(t, output, expected)
	}
}

func TestPrintHelp(t *testing.T) {
	output := captureStdout(t, printHelp)
	for _, expected := range []string{"Offerforge", "Usage:", "Options:", "Examples:", "-storage"} {
		assert.Contains(t, output, expected)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.Log.Output = "stderr"

	assert.Equal(t, logger.WarnLevel, newLogger(cfg, false).GetLevel())
	assert.Equal(t, logger.DebugLevel, newLogger(cfg, true).GetLevel())

	cfg.App.Debug = true
	assert.Equal(t, logger.DebugLevel, newLogger(cfg, false).GetLevel())
}

func TestNeedsRedis(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.False(t, needsRedis(cfg))

	cfg.Inventory.Cache.Enabled = true
	assert.True(t, needsRedis(cfg))

	cfg.Inventory.Cache.Enabled = false
	cfg.Storage.Type = "redis"
	assert.True(t, needsRedis(cfg))
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()

	t.Run("memory", func(t *testing.T) {
		store, err := openStorage(ctx, config.StorageConfig{Type: "memory"}, nil, log)
		require.NoError(t, err)
		assert.IsType(t, &memory.MemoryStorage{}, store)
		assert.NoError(t, store.Close())
	})

	t.Run("unknown falls back to memory", func(t *testing.T) {
		store, err := openStorage(ctx, config.StorageConfig{Type: "etcd"}, nil, log)
		require.NoError(t, err)
		assert.IsType(t, &memory.MemoryStorage{}, store)
	})

	t.Run("badger", func(t *testing.T) {
		store, err := openStorage(ctx, config.StorageConfig{
			Type:   "badger",
			Badger: config.BadgerConfig{Path: t.TempDir()},
		}, nil, log)
		require.NoError(t, err)
		assert.IsType(t, &badger.BadgerStorage{}, store)
		assert.NoError(t, store.Close())
	})

	t.Run("redis without a client", func(t *testing.T) {
		_, err := openStorage(ctx, config.StorageConfig{Type: "redis"}, nil, log)
		assert.Error(t, err)
	})
}

func TestNewProvider(t *testing.T) {
	log := logger.Nop()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	t.Run("catalog", func(t *testing.T) {
		p, err := newProvider(config.InventoryConfig{Type: "catalog", CatalogPath: path}, nil, nil, log)
		require.NoError(t, err)
		assert.IsType(t, &inventory.CatalogProvider{}, p)
	})

	t.Run("missing catalog", func(t *testing.T) {
		_, err := newProvider(config.InventoryConfig{Type: "catalog", CatalogPath: filepath.Join(t.TempDir(), "none.yaml")}, nil, nil, log)
		assert.Error(t, err)
	})

	t.Run("http", func(t *testing.T) {
		p, err := newProvider(config.InventoryConfig{
			Type: "http",
			HTTP: config.InventoryHTTPConfig{BaseURL: "http://inventory.local", Timeout: time.Second},
		}, nil, nil, log)
		require.NoError(t, err)
		assert.IsType(t, &inventory.HTTPProvider{}, p)
	})

	t.Run("invalid http base url", func(t *testing.T) {
		_, err := newProvider(config.InventoryConfig{Type: "http", HTTP: config.InventoryHTTPConfig{BaseURL: "not a url"}}, nil, nil, log)
		assert.Error(t, err)
	})

	t.Run("cache without redis stays direct", func(t *testing.T) {
		p, err := newProvider(config.InventoryConfig{
			Type:        "catalog",
			CatalogPath: path,
			Cache:       config.InventoryCacheConfig{Enabled: true},
		}, nil, nil, log)
		require.NoError(t, err)
		assert.IsType(t, &inventory.CatalogProvider{}, p)
	})

	t.Run("cache wraps provider", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
		defer client.Close()

		m := metrics.NewManager(metrics.DefaultConfig())
		p, err := newProvider(config.InventoryConfig{
			Type:        "catalog",
			CatalogPath: path,
			Cache:       config.InventoryCacheConfig{Enabled: true, TTL: time.Minute},
		}, client, m, log)
		require.NoError(t, err)
		assert.IsType(t, &inventory.CachedProvider{}, p)
	})
}

func TestNewMetrics(t *testing.T) {
	m := newMetrics(config.MetricsConfig{Enabled: true, Port: 9091, Path: "/metrics"})
	assert.True(t, m.Enabled())
	assert.NotNil(t, m.Registry())

	assert.False(t, newMetrics(config.MetricsConfig{}).Enabled())
}

type stubLimiter struct {
	max int
	err error
}

func (s *stubLimiter) SetMaxSessions(n int) error {
	if s.err != nil {
		return s.err
	}
	s.max = n
	return nil
}

func TestApplyHotReload(t *testing.T) {
	log := logger.New(&logger.Config{Level: logger.InfoLevel, Format: "json", Writer: io.Discard})
	limiter := &stubLimiter{max: 10}

	prev := config.HotReloadableConfig{LogLevel: "info", MaxSessions: 10}
	next := config.HotReloadableConfig{LogLevel: "debug", MaxSessions: 25}
	applyHotReload(log, limiter, prev, next)

	assert.Equal(t, logger.DebugLevel, log.GetLevel())
	assert.Equal(t, 25, limiter.max)

	limiter.err = errors.New("negative")
	applyHotReload(log, limiter, next, config.HotReloadableConfig{LogLevel: "debug", MaxSessions: -1})
	assert.Equal(t, 25, limiter.max)
}

func TestShutdownTimeout(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, 30*time.Second, shutdownTimeout(cfg))

	cfg.Server.HTTP.ShutdownTimeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, shutdownTimeout(cfg))
}
