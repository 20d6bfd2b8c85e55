package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/offerforge/offerforge/config"
	"github.com/offerforge/offerforge/pkg/api/handlers"
	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/storage/memory"
)

// setupBenchmarkServer creates a test server for benchmarking
func setupBenchmarkServer(b *testing.B) *httptest.Server {
	cfg := &config.Config{
		Server: config.ServerConfig{
			HTTP: config.HTTPConfig{
				ReadTimeout: 30 * time.Second,
			},
		},
	}
	log := logger.Nop()

	eng, err := engine.New(engine.Config{Name: "benchmark"}, testProvider(),
		engine.WithStorage(memory.NewMemoryStorage()),
		engine.WithLogger(log),
	)
	if err != nil {
		b.Fatalf("Failed to create engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		b.Fatalf("Failed to start engine: %v", err)
	}

	server := httptest.NewServer(NewRouter(cfg, log, &Handlers{
		Journey: handlers.NewJourneyHandler(eng, log),
		Health:  handlers.NewHealthHandler(eng),
	}))
	b.Cleanup(func() {
		server.Close()
		_ = eng.Stop(context.Background())
	})
	return server
}

func createJourney(b *testing.B, client *http.Client, url string) string {
	b.Helper()
	resp, err := client.Post(url+"/api/v1/journeys", "application/json",
		bytes.NewReader([]byte(`{"product_type":"activity"}`)))
	if err != nil {
		b.Fatalf("Failed to create journey: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b.Fatalf("Create journey status = %v, want %v", resp.StatusCode, http.StatusCreated)
	}
	var sess struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		b.Fatalf("Failed to decode session: %v", err)
	}
	return sess.ID
}

// BenchmarkHealthCheck benchmarks the health check endpoint
func BenchmarkHealthCheck(b *testing.B) {
	server := setupBenchmarkServer(b)
	client := server.Client()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := client.Get(server.URL + "/health")
		if err != nil {
			b.Fatalf("Failed to call health check: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b.Fatalf("Health check status = %v, want %v", resp.StatusCode, http.StatusOK)
		}
	}
}

// BenchmarkCreateJourney benchmarks opening and cancelling a session
func BenchmarkCreateJourney(b *testing.B) {
	server := setupBenchmarkServer(b)
	client := server.Client()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := createJourney(b, client, server.URL)

		req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/journeys/"+id, nil)
		resp, err := client.Do(req)
		if err != nil {
			b.Fatalf("Failed to cancel journey: %v", err)
		}
		resp.Body.Close()
	}
}

// BenchmarkGetTotals benchmarks the priced view of an open session
func BenchmarkGetTotals(b *testing.B) {
	server := setupBenchmarkServer(b)
	client := server.Client()
	id := createJourney(b, client, server.URL)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := client.Get(server.URL + "/api/v1/journeys/" + id + "/totals")
		if err != nil {
			b.Fatalf("Failed to get totals: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b.Fatalf("Totals status = %v, want %v", resp.StatusCode, http.StatusOK)
		}
	}
}
