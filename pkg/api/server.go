// Package api serves the journey and offer HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/offerforge/offerforge/config"
	"github.com/offerforge/offerforge/pkg/logger"
)

// Server is the lifecycle cmd/offerforge drives.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HTTPServer serves the chi router built by NewRouter.
type HTTPServer struct {
	cfg    config.HTTPConfig
	server *http.Server
	router chi.Router
	log    logger.Logger

	mu    sync.Mutex
	bound net.Addr
}

// NewHTTPServer wires the router into an http.Server configured from
// cfg.Server.
func NewHTTPServer(cfg *config.Config, log logger.Logger, handlers *Handlers) *HTTPServer {
	router := NewRouter(cfg, log, handlers)
	httpCfg := cfg.Server.HTTP

	return &HTTPServer{
		cfg:    httpCfg,
		router: router,
		log:    log.With(logger.KeyComponent, "http"),
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)),
			Handler:           router,
			ReadTimeout:       httpCfg.ReadTimeout,
			ReadHeaderTimeout: httpCfg.ReadTimeout,
			WriteTimeout:      httpCfg.WriteTimeout,
			IdleTimeout:       httpCfg.IdleTimeout,
			MaxHeaderBytes:    httpCfg.MaxHeaderBytes,
			ErrorLog:          errorLog(log),
		},
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Addr is the listening address once serving, the configured one before.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != nil {
		return s.bound.String()
	}
	return s.server.Addr
}

// Start listens on the configured address and blocks until Shutdown.
func (s *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("http: listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(lis)
}

// Serve blocks serving lis. It returns nil after a clean Shutdown.
func (s *HTTPServer) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.bound = lis.Addr()
	s.mu.Unlock()

	s.log.Info("HTTP server listening",
		"addr", lis.Addr().String(),
		"read_timeout", s.cfg.ReadTimeout,
		"write_timeout", s.cfg.WriteTimeout,
	)
	err := s.server.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http: serve: %w", err)
}

// Shutdown stops accepting connections and waits for active requests
// until ctx ends.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("HTTP server shutdown incomplete", "error", err)
		return fmt.Errorf("http: shutdown: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// errorLog routes net/http's internal errors (TLS handshakes, bad
// requests) through the structured logger.
func errorLog(l logger.Logger) *log.Logger {
	return log.New(logWriter{l.With(logger.KeyComponent, "http")}, "", 0)
}

type logWriter struct{ l logger.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	w.l.Warn(strings.TrimSpace(string(p)))
	return len(p), nil
}
