package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.App.Name != "offerforge" {
		t.Errorf("expected app name 'offerforge', got %s", cfg.App.Name)
	}
	if cfg.App.Environment != "development" {
		t.Errorf("expected environment 'development', got %s", cfg.App.Environment)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.GRPC.Port != 9090 {
		t.Errorf("expected grpc port 9090, got %d", cfg.Server.GRPC.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("expected memory storage, got %s", cfg.Storage.Type)
	}
	if cfg.Storage.Redis.SessionTTL != 24*time.Hour {
		t.Errorf("expected 24h draft ttl, got %v", cfg.Storage.Redis.SessionTTL)
	}
	if !cfg.Engine.RecoverDrafts {
		t.Error("expected draft recovery enabled by default")
	}
	if cfg.Inventory.Type != "http" {
		t.Errorf("expected http inventory, got %s", cfg.Inventory.Type)
	}
	if cfg.Inventory.Cache.Enabled {
		t.Error("expected inventory cache disabled by default")
	}

	if err := ValidateWithDetails(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing app name", func(c *Config) { c.App.Name = "" }, true},
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, true},
		{"invalid log level", func(c *Config) { c.Log.Level = "trace" }, true},
		{"invalid environment", func(c *Config) { c.App.Environment = "qa" }, true},
		{"invalid storage type", func(c *Config) { c.Storage.Type = "sqlite" }, true},
		{"negative max sessions", func(c *Config) { c.Engine.MaxSessions = -1 }, true},
		{"negative inventory rate", func(c *Config) { c.Inventory.HTTP.RequestsPerSecond = -2 }, true},
		{"invalid tracing exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, true},
		{"invalid sampler", func(c *Config) { c.Tracing.Sampler = "sometimes" }, true},
		{"sample rate above one", func(c *Config) { c.Tracing.SampleRate = 1.5 }, true},
		{"host with space", func(c *Config) { c.Server.Host = "local host" }, true},
		{"missing tls cert", func(c *Config) { c.Server.GRPC.TLS.CertFile = "/nonexistent/cert.pem" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "server.port", Message: "must be at most 65535", Value: 99999},
		{Field: "log.level", Message: "must be one of [debug info warn error]", Value: "trace"},
	}

	errMsg := errs.Error()
	if !strings.Contains(errMsg, "server.port") || !strings.Contains(errMsg, "log.level") {
		t.Errorf("expected both fields in %q", errMsg)
	}
	if (ValidationErrors{}).Error() != "no validation errors" {
		t.Error("expected empty message for no errors")
	}
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Redis.Password = "hunter2"

	s := cfg.String()
	if !strings.Contains(s, "offerforge") {
		t.Errorf("expected app name in %q", s)
	}
	if strings.Contains(s, "hunter2") {
		t.Error("string form must not leak secrets")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"OFFERFORGE_SERVER__PORT":                 "server.port",
		"OFFERFORGE_SERVER__HTTP__READ_TIMEOUT":   "server.http.read_timeout",
		"OFFERFORGE_INVENTORY__HTTP__BASE_URL":    "inventory.http.base_url",
		"OFFERFORGE_STORAGE__REDIS__SESSION_TTL":  "storage.redis.session_ttl",
		"OFFERFORGE_ENGINE__MAX_SESSIONS":         "engine.max_sessions",
		"OFFERFORGE_TRACING__SAMPLE_RATE":         "tracing.sample_rate",
		"OFFERFORGE_WEBSOCKET__PING_INTERVAL":     "websocket.ping_interval",
		"OFFERFORGE_INVENTORY__CACHE__KEY_PREFIX": "inventory.cache.key_prefix",
	}
	for in, want := range tests {
		if got := EnvKey(in); got != want {
			t.Errorf("EnvKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoader_Get(t *testing.T) {
	loader := NewLoader(WithDotEnv())
	if _, err := loader.Load("", nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loader.Get("app.name") == nil {
		t.Error("expected non-nil value for app.name")
	}
	if got := loader.GetString("app.name"); got != "offerforge" {
		t.Errorf("expected 'offerforge', got '%s'", got)
	}
	if got := loader.GetInt("server.port"); got != 8080 {
		t.Errorf("expected 8080, got %d", got)
	}
	if !loader.GetBool("metrics.enabled") {
		t.Error("expected metrics.enabled to be true")
	}
}

func TestLoader_Set(t *testing.T) {
	loader := NewLoader(WithDotEnv())
	_, _ = loader.Load("", nil)

	if err := loader.Set("app.name", "custom-app"); err != nil {
		t.Errorf("unexpected error setting value: %v", err)
	}
	if loader.GetString("app.name") != "custom-app" {
		t.Errorf("expected 'custom-app', got '%s'", loader.GetString("app.name"))
	}
	if loader.Print() == "" {
		t.Error("expected non-empty print output")
	}
}

func TestLoadOrDie_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for missing config file")
		}
	}()

	LoadOrDie("/nonexistent/path/config.yaml", nil)
}

func TestLoader_LoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: yaml-test
  environment: production
server:
  port: 9999
  http:
    read_timeout: 5s
log:
  level: debug
  format: text
engine:
  max_sessions: 50
  strict: true
storage:
  type: redis
  redis:
    address: redis:6379
    session_ttl: 2h
inventory:
  type: catalog
  catalog_path: ./catalog.yaml
  cache:
    enabled: true
    ttl: 1m
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := NewLoader(WithDotEnv()).Load(configPath, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.App.Name != "yaml-test" {
		t.Errorf("app name = %s", cfg.App.Name)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server port = %d", cfg.Server.Port)
	}
	if cfg.Server.HTTP.ReadTimeout != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.HTTP.ReadTimeout)
	}
	// Sibling keys absent from the file keep their defaults.
	if cfg.Server.HTTP.WriteTimeout != 30*time.Second {
		t.Errorf("write timeout = %v, want default 30s", cfg.Server.HTTP.WriteTimeout)
	}
	if cfg.Engine.MaxSessions != 50 || !cfg.Engine.Strict {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Storage.Type != "redis" || cfg.Storage.Redis.Address != "redis:6379" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.Redis.SessionTTL != 2*time.Hour {
		t.Errorf("session ttl = %v", cfg.Storage.Redis.SessionTTL)
	}
	if cfg.Storage.Redis.KeyPrefix != "offerforge:" {
		t.Errorf("key prefix = %q, want default", cfg.Storage.Redis.KeyPrefix)
	}
	if cfg.Inventory.Type != "catalog" || !cfg.Inventory.Cache.Enabled || cfg.Inventory.Cache.TTL != time.Minute {
		t.Errorf("inventory = %+v", cfg.Inventory)
	}
}

func TestLoader_LoadJSONFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	jsonContent := `{
  "app": {"name": "json-test"},
  "server": {"port": 8181},
  "inventory": {"http": {"base_url": "https://inventory.example", "headers": {"X-Api-Key": "k"}}}
}`
	if err := os.WriteFile(configPath, []byte(jsonContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := NewLoader(WithDotEnv()).Load(configPath, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != "json-test" || cfg.Server.Port != 8181 {
		t.Errorf("unexpected config %s", cfg)
	}
	if cfg.Inventory.HTTP.BaseURL != "https://inventory.example" {
		t.Errorf("base url = %q", cfg.Inventory.HTTP.BaseURL)
	}
	if cfg.Inventory.HTTP.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want default", cfg.Inventory.HTTP.Timeout)
	}
	if len(cfg.Inventory.HTTP.Headers) != 1 {
		t.Errorf("headers = %v", cfg.Inventory.HTTP.Headers)
	}
}

func TestLoader_LoadUnsupportedFormat(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("app = 'test'"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := NewLoader(WithDotEnv()).Load(configPath, nil); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoader_EnvVars(t *testing.T) {
	t.Setenv("OFFERFORGE_APP__NAME", "env-test")
	t.Setenv("OFFERFORGE_SERVER__PORT", "7777")
	t.Setenv("OFFERFORGE_SERVER__HTTP__READ_TIMEOUT", "45s")
	t.Setenv("OFFERFORGE_LOG__LEVEL", "error")
	t.Setenv("OFFERFORGE_ENGINE__MAX_SESSIONS", "12")

	cfg, err := NewLoader(WithDotEnv()).Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.App.Name != "env-test" {
		t.Errorf("expected app name from env, got %s", cfg.App.Name)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
	if cfg.Server.HTTP.ReadTimeout != 45*time.Second {
		t.Errorf("expected read timeout 45s, got %v", cfg.Server.HTTP.ReadTimeout)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected log level error, got %s", cfg.Log.Level)
	}
	if cfg.Engine.MaxSessions != 12 {
		t.Errorf("expected max sessions 12, got %d", cfg.Engine.MaxSessions)
	}
}

func TestLoader_DotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	dotenv := filepath.Join(tmpDir, ".env")
	content := "OFFERFORGE_STORAGE__TYPE=badger\nOFFERFORGE_LOG__LEVEL=debug\n"
	if err := os.WriteFile(dotenv, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write dotenv: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("OFFERFORGE_STORAGE__TYPE") })

	// Already exported variables win over the dotenv file.
	t.Setenv("OFFERFORGE_LOG__LEVEL", "warn")

	cfg, err := NewLoader(WithDotEnv(dotenv, filepath.Join(tmpDir, "missing.env"))).Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Type != "badger" {
		t.Errorf("expected storage type from dotenv, got %s", cfg.Storage.Type)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected exported log level to win, got %s", cfg.Log.Level)
	}
}

func TestLoader_Overrides(t *testing.T) {
	cfg, err := NewLoader(WithDotEnv()).Load("", map[string]interface{}{
		"server.port":    7000,
		"inventory.type": "catalog",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected override port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Inventory.Type != "catalog" {
		t.Errorf("expected override inventory type, got %s", cfg.Inventory.Type)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}
}

func TestLoader_ReloadStartsFresh(t *testing.T) {
	loader := NewLoader(WithDotEnv())
	if _, err := loader.Load("", map[string]interface{}{"server.port": 7001}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg, err := loader.Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected previous override to be gone, got %d", cfg.Server.Port)
	}
}

func TestGRPCConfig_ToGRPCConfig(t *testing.T) {
	cfg := DefaultConfig()
	grpcCfg := cfg.Server.GRPC.ToGRPCConfig()

	if grpcCfg.Address != ":9090" {
		t.Errorf("expected ':9090', got '%s'", grpcCfg.Address)
	}
	if grpcCfg.MaxConnections != 1000 {
		t.Errorf("expected 1000, got %d", grpcCfg.MaxConnections)
	}
	if grpcCfg.MaxRecvMsgSize != 4*1024*1024 {
		t.Errorf("expected %d, got %d", 4*1024*1024, grpcCfg.MaxRecvMsgSize)
	}
	if grpcCfg.RateLimit != 200 || grpcCfg.RateBurst != 50 {
		t.Errorf("expected rate limit 200/50, got %v/%d", grpcCfg.RateLimit, grpcCfg.RateBurst)
	}
	if grpcCfg.TLS != nil {
		t.Error("expected no TLS config when disabled")
	}
}

func TestConfig_GRPCServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.GRPC.Port = 9191
	cfg.Tracing.Enabled = true

	grpcCfg := cfg.GRPCServerConfig()
	if grpcCfg.Address != "127.0.0.1:9191" {
		t.Errorf("expected 127.0.0.1:9191, got %q", grpcCfg.Address)
	}
	if !grpcCfg.EnableTracing {
		t.Error("expected tracing interceptors when tracing is enabled")
	}
	if grpcCfg.Keepalive == nil || grpcCfg.Keepalive.TimeSeconds != cfg.Server.GRPC.Keepalive.TimeSeconds {
		t.Errorf("keepalive not carried over: %+v", grpcCfg.Keepalive)
	}
}

func TestGRPCConfig_ToGRPCConfig_WithTLS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.GRPC.TLS = GRPCTLSConfig{
		Enabled:    true,
		CertFile:   "/path/to/cert.pem",
		KeyFile:    "/path/to/key.pem",
		CAFile:     "/path/to/ca.pem",
		ClientAuth: true,
	}

	grpcCfg := cfg.Server.GRPC.ToGRPCConfig()

	if grpcCfg.TLS == nil {
		t.Fatal("expected non-nil TLS config")
	}
	if grpcCfg.TLS.CertFile != "/path/to/cert.pem" || !grpcCfg.TLS.ClientAuth {
		t.Errorf("unexpected TLS config %+v", grpcCfg.TLS)
	}
}

func TestValidationMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Log.Format = "xml"

	err := ValidateWithDetails(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"this field is required", "must be one of [json text]"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestLoader_SearchPaths(t *testing.T) {
	tmpDir := t.TempDir()
	found := filepath.Join(tmpDir, "found.yaml")
	if err := os.WriteFile(found, []byte("app:\n  name: discovered\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader(WithDotEnv(), WithSearchPaths(filepath.Join(tmpDir, "missing.yaml"), found))
	cfg, err := loader.Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != "discovered" {
		t.Errorf("app name = %q, want discovered", cfg.App.Name)
	}

	cfg, err = NewLoader(WithDotEnv(), WithSearchPaths()).Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != DefaultConfig().App.Name {
		t.Errorf("app name = %q, want default", cfg.App.Name)
	}
}

func TestFlatten(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Inventory.HTTP.Headers = map[string]string{"X-Api-Key": "k"}

	flat := flatten(cfg)
	if got := flat["server.http.write_timeout"]; got != 30*time.Second {
		t.Errorf("server.http.write_timeout = %v", got)
	}
	if got := flat["storage.redis.key_prefix"]; got != "offerforge:" {
		t.Errorf("storage.redis.key_prefix = %v", got)
	}
	if _, ok := flat["inventory.http.headers"]; !ok {
		t.Error("non-empty headers map should be kept")
	}
	if _, ok := flat["server.http"]; ok {
		t.Error("nested structs should be expanded, not stored")
	}

	if _, ok := flatten(DefaultConfig())["inventory.http.headers"]; ok {
		t.Error("empty headers map should be dropped")
	}
}
