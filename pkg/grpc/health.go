package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer wraps the gRPC health check server
type HealthServer struct {
	server *health.Server
}

// NewHealthServer creates a new health check server
func NewHealthServer() *HealthServer {
	return &HealthServer{
		server: health.NewServer(),
	}
}

// SetServing marks a service as serving or not serving. An empty service
// name addresses the whole server.
func (h *HealthServer) SetServing(service string, serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(service, st)
}

// Track polls ready every interval and mirrors the result onto service
// until ctx is done.
func (h *HealthServer) Track(ctx context.Context, service string, ready func() bool, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last := ready()
	h.SetServing(service, last)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if now := ready(); now != last {
				last = now
				h.SetServing(service, now)
			}
		}
	}
}

// Shutdown sets every service to NOT_SERVING and ignores later updates.
func (h *HealthServer) Shutdown() {
	h.server.Shutdown()
}

// GetServer returns the underlying health server for registration
func (h *HealthServer) GetServer() *health.Server {
	return h.server
}
