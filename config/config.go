// Package config loads the offerforge configuration from defaults, a yaml
// or json file, dotenv files, OFFERFORGE_* variables and flags.
package config

import (
	"fmt"
	"time"
)

// Config is the root of the configuration tree.
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Log       LogConfig       `mapstructure:"log" validate:"required"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

type AppConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Version string `mapstructure:"version"`

	// Environment is development, staging or production.
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug forces debug logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig covers the HTTP API and the optional gRPC endpoint, which
// share Host.
type ServerConfig struct {
	Host string `mapstructure:"host" validate:"host"`
	Port int    `mapstructure:"port" validate:"required,min=1,max=65535"`

	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	CORS CORSConfig `mapstructure:"cors"`
}

type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=1,max=65535"`

	// MaxConnections caps concurrent streams per connection.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`
	MaxRecvMsgSize int `mapstructure:"max_recv_msg_size" validate:"min=0"`
	MaxSendMsgSize int `mapstructure:"max_send_msg_size" validate:"min=0"`

	EnableReflection  bool `mapstructure:"enable_reflection"`
	EnableHealthCheck bool `mapstructure:"enable_health_check"`

	// RateLimit is the per-client budget in requests per second. Zero
	// disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"min=0"`

	TLS       GRPCTLSConfig       `mapstructure:"tls"`
	Keepalive GRPCKeepaliveConfig `mapstructure:"keepalive"`
}

// GRPCTLSConfig enables TLS, and mTLS when ClientAuth is set. Paths that
// are set must exist.
type GRPCTLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertFile   string `mapstructure:"cert_file" validate:"file_exists"`
	KeyFile    string `mapstructure:"key_file" validate:"file_exists"`
	CAFile     string `mapstructure:"ca_file" validate:"file_exists"`
	ClientAuth bool   `mapstructure:"client_auth"`
}

// GRPCKeepaliveConfig is in whole seconds.
type GRPCKeepaliveConfig struct {
	MaxIdleSeconds      int  `mapstructure:"max_idle_seconds" validate:"min=0"`
	MaxAgeSeconds       int  `mapstructure:"max_age_seconds" validate:"min=0"`
	MaxAgeGraceSeconds  int  `mapstructure:"max_age_grace_seconds" validate:"min=0"`
	TimeSeconds         int  `mapstructure:"time_seconds" validate:"min=0"`
	TimeoutSeconds      int  `mapstructure:"timeout_seconds" validate:"min=0"`
	MinTimeSeconds      int  `mapstructure:"min_time_seconds" validate:"min=0"`
	PermitWithoutStream bool `mapstructure:"permit_without_stream"`
}

type HTTPConfig struct {
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout bounds the drain of in-flight requests on exit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`

	// MaxAge is how long browsers may cache a preflight, in seconds.
	MaxAge int `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output"`
}

// EngineConfig holds journey engine settings.
type EngineConfig struct {
	// MaxSessions caps the number of live sessions. Zero means unlimited.
	MaxSessions int `mapstructure:"max_sessions" validate:"min=0"`

	// Strict panics on broken session invariants instead of logging them.
	// The development environment is always strict.
	Strict bool `mapstructure:"strict"`

	// RecoverDrafts reopens persisted draft sessions on start.
	RecoverDrafts bool `mapstructure:"recover_drafts"`

	// ShutdownTimeout bounds how long Stop waits for sessions to close.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type is the storage backend (memory, badger, redis).
	Type string `mapstructure:"type" validate:"oneof=memory badger redis"`

	Badger BadgerConfig `mapstructure:"badger"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	ValueLogFileSize  int64 `mapstructure:"value_log_file_size"`
	NumVersionsToKeep int   `mapstructure:"num_versions_to_keep"`
}

// RedisConfig holds Redis connection settings. The same connection backs
// the redis storage backend and the inventory cache.
type RedisConfig struct {
	Address  string `mapstructure:"address" validate:"host"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces storage keys.
	KeyPrefix string `mapstructure:"key_prefix"`

	// SessionTTL expires idle drafts. Zero keeps them forever.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// InventoryConfig selects and configures the candidate provider.
type InventoryConfig struct {
	// Type is the provider (http, catalog).
	Type string `mapstructure:"type" validate:"oneof=http catalog"`

	HTTP InventoryHTTPConfig `mapstructure:"http"`

	// CatalogPath is a yaml or json catalog file for the catalog provider.
	CatalogPath string `mapstructure:"catalog_path"`

	Cache InventoryCacheConfig `mapstructure:"cache"`
}

// InventoryHTTPConfig configures the REST inventory backend.
type InventoryHTTPConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond throttles outbound searches. Zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`

	Headers map[string]string `mapstructure:"headers"`
}

// InventoryCacheConfig configures the redis search cache.
type InventoryCacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// MetricsConfig serves Prometheus metrics on a separate port.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the OTLP transport (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	Timeout time.Duration `mapstructure:"timeout"`

	Headers map[string]string `mapstructure:"headers"`

	// Sampler is one of always_on, always_off, parentbased_traceidratio.
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// WebSocketConfig holds live event stream settings.
type WebSocketConfig struct {
	MaxConnections int           `mapstructure:"max_connections" validate:"min=0"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`

	// Buffer is the per-client event buffer.
	Buffer int `mapstructure:"buffer" validate:"min=0"`
}

// Validate runs the struct tag rules. ValidateWithDetails gives field
// level messages.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String summarises the configuration. Secrets are never included.
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Storage: %s, Inventory: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Storage.Type, c.Inventory.Type)
}
