package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "OFFERFORGE_"
	// EnvNesting separates nesting levels in environment variable names.
	EnvNesting = "__"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// DefaultSearchPaths are tried in order when no config file is given.
var DefaultSearchPaths = []string{
	"config.yaml",
	"config.yml",
	"config.json",
	"configs/config.yaml",
	"/etc/offerforge/config.yaml",
}

// Loader layers configuration sources, lowest priority first:
// defaults, the config file, dotenv files and the environment, then
// command line overrides.
type Loader struct {
	k           *koanf.Koanf
	dotenvs     []string
	searchPaths []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDotEnv sets the dotenv files read before environment variables are
// parsed. Missing files are skipped. Variables already set win.
func WithDotEnv(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.dotenvs = paths
	}
}

// WithSearchPaths replaces DefaultSearchPaths.
func WithSearchPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.searchPaths = paths
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k:           koanf.New(Delimiter),
		dotenvs:     []string{".env"},
		searchPaths: DefaultSearchPaths,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds and validates a Config. Each call starts from scratch, so
// the watcher can reuse one Loader for every reload.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	l.k = koanf.New(Delimiter)

	defaults := flatten(DefaultConfig())
	if err := l.k.Load(confmap.Provider(defaults, Delimiter), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else if path := firstExisting(l.searchPaths); path != "" {
		// Discovered files are best effort.
		_ = l.loadFile(path)
	}

	if err := l.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load dotenv: %w", err)
	}
	if err := l.k.Load(env.Provider(EnvPrefix, Delimiter, EnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	// A file may replace a whole subtree; restore the defaults it dropped.
	for key, value := range defaults {
		if l.k.Exists(key) {
			continue
		}
		if err := l.k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadFile(path string) error {
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	return l.k.Load(file.Provider(path), parser)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadDotEnv exports the variables of the configured dotenv files.
func (l *Loader) loadDotEnv() error {
	for _, path := range l.dotenvs {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// EnvKey maps an environment variable name to a config key:
//
//	OFFERFORGE_SERVER__PORT               -> server.port
//	OFFERFORGE_INVENTORY__HTTP__BASE_URL  -> inventory.http.base_url
func EnvKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, strings.ToLower(EnvNesting), Delimiter)
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} { return l.k.Get(key) }

// GetString returns a string configuration value.
func (l *Loader) GetString(key string) string { return l.k.String(key) }

// GetInt returns an int configuration value.
func (l *Loader) GetInt(key string) int { return l.k.Int(key) }

// GetBool returns a bool configuration value.
func (l *Loader) GetBool(key string) bool { return l.k.Bool(key) }

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) error { return l.k.Set(key, value) }

// Print renders the loaded keys for debugging.
func (l *Loader) Print() string { return l.k.Sprint() }

var durationType = reflect.TypeOf(time.Duration(0))

// flatten turns a tagged config struct into dot-separated keys. Fields
// without a mapstructure tag, nil pointers and empty maps are left out.
func flatten(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	flattenInto(out, reflect.ValueOf(v), "")
	return out
}

func flattenInto(out map[string]interface{}, val reflect.Value, prefix string) {
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + Delimiter + tag
		}

		fv := val.Field(i)
		switch {
		case fv.Type() == durationType:
			out[key] = fv.Interface()
		case fv.Kind() == reflect.Struct, fv.Kind() == reflect.Ptr:
			flattenInto(out, fv, key)
		case fv.Kind() == reflect.Map:
			if fv.Len() > 0 {
				out[key] = fv.Interface()
			}
		case fv.Kind() == reflect.Slice:
			items := make([]interface{}, fv.Len())
			for j := range items {
				items[j] = fv.Index(j).Interface()
			}
			out[key] = items
		default:
			out[key] = fv.Interface()
		}
	}
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}

// LoadOrDie loads configuration and panics on error.
func LoadOrDie(configPath string, overrides map[string]interface{}) *Config {
	cfg, err := Load(configPath, overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
