package grpc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/offerforge/offerforge/pkg/logger"
)

func localConfig() *Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	return cfg
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	cfg := localConfig()
	cfg.Address = ""
	_, err = New(cfg)
	assert.ErrorContains(t, err, "address")
}

func TestServer_Lifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, err := New(localConfig(), WithLogger(logger.Nop()), WithRegisterer(reg))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", srv.Address())
	assert.Nil(t, srv.Health())
	assert.False(t, srv.IsRunning())

	require.NoError(t, srv.Start())
	assert.True(t, srv.IsRunning())
	assert.ErrorIs(t, srv.Start(), ErrServerRunning)
	assert.NotEqual(t, "127.0.0.1:0", srv.Address(), "bound port should replace :0")

	conn, err := ggrpc.NewClient(srv.Address(), ggrpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "offerforge_grpc_handled_total")

	require.NoError(t, srv.Stop(ctx))
	assert.False(t, srv.IsRunning())
	assert.NoError(t, srv.Stop(ctx), "second stop is a no-op")
}

func TestServer_StartFailsOnBusyAddress(t *testing.T) {
	first, err := New(localConfig(), WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	cfg := localConfig()
	cfg.Address = first.Address()
	second, err := New(cfg, WithLogger(logger.Nop()))
	require.NoError(t, err)
	assert.ErrorContains(t, second.Start(), "failed to listen")
	assert.False(t, second.IsRunning())
}

func TestServerCredentials_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not pem"), 0o600))

	_, err := serverCredentials(&TLSConfig{Enabled: true, CertFile: garbage, KeyFile: garbage})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "tls: load key pair"))

	cfg := localConfig()
	cfg.TLS = &TLSConfig{Enabled: true, CertFile: filepath.Join(dir, "missing.crt"), KeyFile: filepath.Join(dir, "missing.key")}
	srv, err := New(cfg, WithLogger(logger.Nop()))
	require.NoError(t, err)
	assert.Error(t, srv.Start())
	assert.False(t, srv.IsRunning())
}
