package api

import (
	"bytes"
	"encoding/json"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/offerforge/offerforge/config"
	"github.com/offerforge/offerforge/pkg/logger"
)

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			HTTP: config.HTTPConfig{
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 5 * time.Second,
				IdleTimeout:  10 * time.Second,
			},
			CORS: config.CORSConfig{
				Enabled: false,
			},
		},
	}
}

func TestNewHTTPServer(t *testing.T) {
	testHandlers := createTestHandlers(t)
	server := NewHTTPServer(testServerConfig(), logger.Nop(), testHandlers)

	if server == nil {
		t.Fatal("NewHTTPServer returned nil")
	}
	if server.server == nil {
		t.Error("HTTP server not initialized")
	}
	if server.server.Addr != "127.0.0.1:8080" {
		t.Errorf("addr = %q, want 127.0.0.1:8080", server.server.Addr)
	}
	if server.Handler() == nil {
		t.Error("Router not initialized")
	}
}

func TestHTTPServer_ServeAndShutdown(t *testing.T) {
	testHandlers := createTestHandlers(t)
	server := NewHTTPServer(testServerConfig(), logger.Nop(), testHandlers)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(lis)
	}()

	waitUntil(t, func() bool { return server.Addr() == lis.Addr().String() })

	resp, err := http.Get("http://" + lis.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Health check status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Serve() returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Serve() did not return after shutdown")
	}
}

func TestHTTPServer_StartFailsOnBusyPort(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	cfg := testServerConfig()
	cfg.Server.Port = lis.Addr().(*net.TCPAddr).Port
	server := NewHTTPServer(cfg, logger.Nop(), &Handlers{})

	if err := server.Start(); err == nil {
		t.Fatal("expected Start to fail on a port in use")
	}
}

func TestErrorLog_UsesStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: logger.InfoLevel, Format: "json", Writer: &buf})

	errorLog(log).Printf("http: TLS handshake error from 10.0.0.1:5555: EOF\n")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["message"] != "http: TLS handshake error from 10.0.0.1:5555: EOF" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "WARN" || entry[logger.KeyComponent] != "http" {
		t.Errorf("entry = %v", entry)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
