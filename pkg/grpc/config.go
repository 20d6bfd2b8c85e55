package grpc

import (
	"errors"
	"fmt"
	"time"
)

// Config holds gRPC server configuration.
type Config struct {
	// Address is the listen address, e.g. ":9090".
	Address string

	TLS *TLSConfig

	// MaxConnections caps concurrent streams per connection.
	MaxConnections int

	Keepalive *KeepaliveConfig

	// Message size limits in bytes. Zero keeps the grpc-go defaults.
	MaxRecvMsgSize int
	MaxSendMsgSize int

	EnableReflection  bool
	EnableHealthCheck bool

	// EnableTracing adds the OpenTelemetry server interceptors.
	EnableTracing bool

	// RateLimit is the per-client request budget per second. Zero disables it.
	RateLimit float64
	RateBurst int
}

// TLSConfig holds TLS and mTLS settings.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	// CAFile verifies client certificates when ClientAuth is set.
	CAFile     string
	ClientAuth bool
}

// KeepaliveConfig holds keepalive settings, in seconds.
type KeepaliveConfig struct {
	MaxIdleSeconds      int
	MaxAgeSeconds       int
	MaxAgeGraceSeconds  int
	TimeSeconds         int
	TimeoutSeconds      int
	MinTimeSeconds      int
	PermitWithoutStream bool
}

// DefaultConfig returns the configuration used by the journey service:
// small messages, health checks on and a per-client rate limit.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":9090",
		MaxConnections:    1000,
		MaxRecvMsgSize:    4 << 20,
		MaxSendMsgSize:    4 << 20,
		EnableHealthCheck: true,
		RateLimit:         200,
		RateBurst:         50,
		Keepalive: &KeepaliveConfig{
			MaxIdleSeconds:     300,
			MaxAgeSeconds:      3600,
			MaxAgeGraceSeconds: 60,
			TimeSeconds:        60,
			TimeoutSeconds:     20,
			MinTimeSeconds:     30,
		},
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("address cannot be empty"))
	}
	errs = append(errs,
		nonNegative("max connections", c.MaxConnections),
		nonNegative("max recv message size", c.MaxRecvMsgSize),
		nonNegative("max send message size", c.MaxSendMsgSize),
		nonNegative("rate burst", c.RateBurst),
	)
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit cannot be negative"))
	}
	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tls: %w", err))
		}
	}
	if c.Keepalive != nil {
		if err := c.Keepalive.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("keepalive: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks that an enabled TLS setup names its files.
func (t *TLSConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	var errs []error
	if t.CertFile == "" {
		errs = append(errs, errors.New("cert file is required"))
	}
	if t.KeyFile == "" {
		errs = append(errs, errors.New("key file is required"))
	}
	if t.ClientAuth && t.CAFile == "" {
		errs = append(errs, errors.New("CA file is required for client auth"))
	}
	return errors.Join(errs...)
}

// Validate checks keepalive bounds. The ping timeout must be shorter than
// the ping interval.
func (k *KeepaliveConfig) Validate() error {
	errs := []error{
		nonNegative("max idle seconds", k.MaxIdleSeconds),
		nonNegative("max age seconds", k.MaxAgeSeconds),
		nonNegative("max age grace seconds", k.MaxAgeGraceSeconds),
		nonNegative("time seconds", k.TimeSeconds),
		nonNegative("timeout seconds", k.TimeoutSeconds),
		nonNegative("min time seconds", k.MinTimeSeconds),
	}
	if k.TimeSeconds > 0 && k.TimeoutSeconds >= k.TimeSeconds {
		errs = append(errs, errors.New("timeout must be less than ping interval"))
	}
	return errors.Join(errs...)
}

func nonNegative(name string, v int) error {
	if v < 0 {
		return fmt.Errorf("%s cannot be negative", name)
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
