package config

import (
	"net"
	"strconv"

	grpcpkg "github.com/offerforge/offerforge/pkg/grpc"
)

// ToGRPCConfig maps the gRPC section onto the server configuration. The
// listener binds every interface; use Config.GRPCServerConfig to honour
// server.host and tracing.
func (g *GRPCConfig) ToGRPCConfig() *grpcpkg.Config {
	keepalive := grpcpkg.KeepaliveConfig(g.Keepalive)
	cfg := &grpcpkg.Config{
		Address:           net.JoinHostPort("", strconv.Itoa(g.Port)),
		MaxConnections:    g.MaxConnections,
		MaxRecvMsgSize:    g.MaxRecvMsgSize,
		MaxSendMsgSize:    g.MaxSendMsgSize,
		EnableReflection:  g.EnableReflection,
		EnableHealthCheck: g.EnableHealthCheck,
		RateLimit:         g.RateLimit,
		RateBurst:         g.RateBurst,
		Keepalive:         &keepalive,
	}
	if g.TLS.Enabled {
		tls := grpcpkg.TLSConfig(g.TLS)
		cfg.TLS = &tls
	}
	return cfg
}

// GRPCServerConfig is the journey gRPC server configuration: the gRPC
// section bound to server.host, traced when tracing is on.
func (c *Config) GRPCServerConfig() *grpcpkg.Config {
	cfg := c.Server.GRPC.ToGRPCConfig()
	cfg.Address = net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.GRPC.Port))
	cfg.EnableTracing = c.Tracing.Enabled
	return cfg
}
