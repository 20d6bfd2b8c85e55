package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "offerforge",
			Version:     "dev",
			Environment: "development",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			GRPC: GRPCConfig{
				Enabled:           false,
				Port:              9090,
				MaxConnections:    1000,
				MaxRecvMsgSize:    4 * 1024 * 1024, // 4MB
				MaxSendMsgSize:    4 * 1024 * 1024, // 4MB
				EnableHealthCheck: true,
				RateLimit:         200,
				RateBurst:         50,
				Keepalive: GRPCKeepaliveConfig{
					MaxIdleSeconds:     300,
					MaxAgeSeconds:      3600,
					MaxAgeGraceSeconds: 60,
					TimeSeconds:        60,
					TimeoutSeconds:     20,
					MinTimeSeconds:     30,
				},
			},
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
				ExposedHeaders: []string{"X-Request-ID"},
				MaxAge:         300,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Engine: EngineConfig{
			MaxSessions:     10000,
			Strict:          false,
			RecoverDrafts:   true,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  256 << 20, // 256MB
				NumVersionsToKeep: 1,
			},
			Redis: RedisConfig{
				Address:    "localhost:6379",
				KeyPrefix:  "offerforge:",
				SessionTTL: 24 * time.Hour,
			},
		},
		Inventory: InventoryConfig{
			Type: "http",
			HTTP: InventoryHTTPConfig{
				BaseURL:           "http://localhost:8090",
				Timeout:           10 * time.Second,
				RequestsPerSecond: 20,
				Burst:             5,
			},
			CatalogPath: "./configs/catalog.yaml",
			Cache: InventoryCacheConfig{
				Enabled:   false,
				TTL:       5 * time.Minute,
				KeyPrefix: "offerforge:inventory:",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 0.1,
		},
		WebSocket: WebSocketConfig{
			MaxConnections: 1000,
			PingInterval:   30 * time.Second,
			PongTimeout:    60 * time.Second,
			Buffer:         64,
		},
	}
}
