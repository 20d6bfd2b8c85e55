package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/offerforge/offerforge/pkg/grpc/interceptors"
	"github.com/offerforge/offerforge/pkg/logger"
)

// ErrServerRunning is returned by Start on a server that is already up.
var ErrServerRunning = errors.New("grpc server already running")

// Server is the journey gRPC endpoint. Services may be registered before
// or after Start.
type Server struct {
	cfg        *Config
	log        logger.Logger
	registerer prometheus.Registerer

	mu       sync.RWMutex
	srv      *grpc.Server
	lis      net.Listener
	health   *HealthServer
	services []registration
}

type registration struct {
	desc *grpc.ServiceDesc
	impl any
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRegisterer enables RPC metrics on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(s *Server) {
		s.registerer = r
	}
}

// New validates cfg and returns a stopped server.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{cfg: cfg, log: logger.Global()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.KeyComponent, "grpc")
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ErrServerRunning
	}

	opts, err := s.serverOptions()
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}

	srv := grpc.NewServer(opts...)
	for _, r := range s.services {
		srv.RegisterService(r.desc, r.impl)
	}
	if s.cfg.EnableReflection {
		reflection.Register(srv)
	}
	if s.cfg.EnableHealthCheck {
		s.health = NewHealthServer()
		grpc_health_v1.RegisterHealthServer(srv, s.health.GetServer())
		s.health.SetServing("", true)
	}
	s.srv, s.lis = srv, lis

	s.log.Info("gRPC server listening",
		"addr", lis.Addr().String(),
		"tls", s.cfg.TLS != nil && s.cfg.TLS.Enabled,
		"services", len(s.services),
	)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("gRPC server stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight RPCs. When ctx ends first the remaining
// connections are closed and an error is returned. Stopping a stopped
// server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, health := s.srv, s.health
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if health != nil {
		health.Shutdown()
	}
	drained := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		srv.Stop()
		return fmt.Errorf("graceful shutdown interrupted: %w", ctx.Err())
	}
}

// RegisterService adds a service. Registering after Start is only allowed
// by grpc-go before the first connection is served.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append(s.services, registration{desc: desc, impl: impl})
	if s.srv != nil {
		s.srv.RegisterService(desc, impl)
	}
}

// Address returns the bound address once started, the configured one
// before.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lis != nil {
		return s.lis.Addr().String()
	}
	return s.cfg.Address
}

// Health returns the health server. It is nil until Start, and stays nil
// when health checks are disabled.
func (s *Server) Health() *HealthServer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.srv != nil
}

func (s *Server) serverOptions() ([]grpc.ServerOption, error) {
	var opts []grpc.ServerOption

	if t := s.cfg.TLS; t != nil && t.Enabled {
		creds, err := serverCredentials(t)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}
	if n := s.cfg.MaxConnections; n > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(n)))
	}
	if n := s.cfg.MaxRecvMsgSize; n > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(n))
	}
	if n := s.cfg.MaxSendMsgSize; n > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(n))
	}
	if ka := s.cfg.Keepalive; ka != nil {
		opts = append(opts,
			grpc.KeepaliveParams(keepalive.ServerParameters{
				MaxConnectionIdle:     seconds(ka.MaxIdleSeconds),
				MaxConnectionAge:      seconds(ka.MaxAgeSeconds),
				MaxConnectionAgeGrace: seconds(ka.MaxAgeGraceSeconds),
				Time:                  seconds(ka.TimeSeconds),
				Timeout:               seconds(ka.TimeoutSeconds),
			}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             seconds(ka.MinTimeSeconds),
				PermitWithoutStream: ka.PermitWithoutStream,
			}),
		)
	}
	return append(opts, s.chain().Build()...), nil
}

// chain orders the interceptors: recovery first so it sees every panic,
// then tracing, request id, rate limit, logging and metrics.
func (s *Server) chain() *interceptors.ChainBuilder {
	b := interceptors.NewChainBuilder().WithRecovery(s.log)
	if s.cfg.EnableTracing {
		b.WithTracing()
	}
	b.WithRequestID().
		WithRateLimit(s.cfg.RateLimit, s.cfg.RateBurst).
		WithLogging(s.log)
	if s.registerer != nil {
		b.WithMetrics(interceptors.NewMetrics(s.registerer))
	}
	return b
}
