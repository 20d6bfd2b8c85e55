package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/offerforge/offerforge/config"
	"github.com/offerforge/offerforge/pkg/inventory"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/metrics"
	"github.com/offerforge/offerforge/pkg/storage"
	"github.com/offerforge/offerforge/pkg/storage/badger"
	"github.com/offerforge/offerforge/pkg/storage/memory"
	redisstore "github.com/offerforge/offerforge/pkg/storage/redis"
)

func newLogger(cfg *config.Config, debug bool) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || debug {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}

// needsRedis reports whether any component talks to redis.
func needsRedis(cfg *config.Config) bool {
	return cfg.Storage.Type == "redis" || cfg.Inventory.Cache.Enabled
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// openStorage builds the draft and offer store. rdb is only used by the
// redis backend and may be nil otherwise.
func openStorage(ctx context.Context, cfg config.StorageConfig, rdb redis.Cmdable, log logger.Logger) (storage.Storage, error) {
	switch cfg.Type {
	case "badger":
		badgerCfg := &badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		}
		store, err := badger.NewBadgerStorage(badgerCfg)
		if err != nil {
			return nil, fmt.Errorf("create badger storage: %w", err)
		}
		log.Info("Initialized Badger storage", "path", badgerCfg.Path)
		return store, nil
	case "redis":
		store, err := redisstore.NewRedisStorage(ctx, rdb, redisstore.Config{
			KeyPrefix:  cfg.Redis.KeyPrefix,
			SessionTTL: cfg.Redis.SessionTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis storage: %w", err)
		}
		log.Info("Initialized Redis storage", "address", cfg.Redis.Address)
		return store, nil
	case "memory", "":
		log.Info("Initialized memory storage")
		return memory.NewMemoryStorage(), nil
	default:
		log.Warn("Unknown storage type, using memory storage", "type", cfg.Type)
		return memory.NewMemoryStorage(), nil
	}
}

// newProvider builds the inventory provider, wrapped in the redis search
// cache when enabled.
func newProvider(cfg config.InventoryConfig, rdb redis.Cmdable, m *metrics.Manager, log logger.Logger) (inventory.Provider, error) {
	var provider inventory.Provider
	switch cfg.Type {
	case "catalog":
		catalog, err := inventory.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load inventory catalog: %w", err)
		}
		log.Info("Loaded inventory catalog", "path", cfg.CatalogPath)
		provider = catalog
	default:
		httpProvider, err := inventory.NewHTTPProvider(inventory.HTTPConfig{
			BaseURL:           cfg.HTTP.BaseURL,
			Timeout:           cfg.HTTP.Timeout,
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			Burst:             cfg.HTTP.Burst,
			Headers:           cfg.HTTP.Headers,
		}, nil, log)
		if err != nil {
			return nil, fmt.Errorf("create inventory client: %w", err)
		}
		log.Info("Using inventory backend", "base_url", cfg.HTTP.BaseURL, "rps", cfg.HTTP.RequestsPerSecond)
		provider = httpProvider
	}

	if !cfg.Cache.Enabled || rdb == nil {
		return provider, nil
	}
	cached := inventory.NewCachedProvider(provider, rdb, inventory.CacheConfig{
		TTL:       cfg.Cache.TTL,
		KeyPrefix: cfg.Cache.KeyPrefix,
	}, log)
	if m != nil && m.Enabled() {
		cached.SetObserver(m)
	}
	log.Info("Inventory search cache enabled", "ttl", cfg.Cache.TTL)
	return cached, nil
}

func newMetrics(cfg config.MetricsConfig) *metrics.Manager {
	defaults := metrics.DefaultConfig()
	return metrics.NewManager(metrics.Config{
		Enabled:                cfg.Enabled,
		Port:                   cfg.Port,
		Path:                   cfg.Path,
		SessionDurationBuckets: defaults.SessionDurationBuckets,
		SearchDurationBuckets:  defaults.SearchDurationBuckets,
		OfferValueBuckets:      defaults.OfferValueBuckets,
		HTTPDurationBuckets:    defaults.HTTPDurationBuckets,
	})
}

// sessionLimiter is the part of the engine touched by hot reload.
type sessionLimiter interface {
	SetMaxSessions(n int) error
}

// applyHotReload applies the reloadable settings that differ between prev
// and next.
func applyHotReload(log logger.Logger, eng sessionLimiter, prev, next config.HotReloadableConfig) {
	if prev.LogLevel != next.LogLevel {
		log.SetLevel(logger.ParseLevel(next.LogLevel))
		log.Info("Log level changed", "from", prev.LogLevel, "to", next.LogLevel)
	}
	if prev.MaxSessions != next.MaxSessions {
		if err := eng.SetMaxSessions(next.MaxSessions); err != nil {
			log.Warn("Rejected max sessions change", "error", err)
		} else {
			log.Info("Max sessions changed", "from", prev.MaxSessions, "to", next.MaxSessions)
		}
	}
	if prev.LogFormat != next.LogFormat || prev.CacheTTL != next.CacheTTL {
		log.Warn("Configuration change needs a restart to apply",
			"log_format", next.LogFormat,
			"cache_ttl", next.CacheTTL,
		)
	}
}

// shutdownTimeout picks the graceful shutdown budget.
func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.HTTP.ShutdownTimeout > 0 {
		return cfg.Server.HTTP.ShutdownTimeout
	}
	return 30 * time.Second
}
