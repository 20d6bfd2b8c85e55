package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/offerforge/offerforge/pkg/stepgraph"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
	if m.Registry() == nil {
		t.Error("Expected a registry when enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordSessionStarted("hotel", "create")
	m.RecordStepEntered("hotel", "hotel-search")
	m.RecordSearch("hotel-search", "completed", 300*time.Millisecond)
	m.RecordOfferSubmitted("hotel", "create", "USD", 330)
	m.RecordSessionEnded("hotel", "submitted", 2*time.Minute)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"offerforge_journey_sessions_created_total",
		"offerforge_journey_sessions_active",
		"offerforge_journey_session_duration_seconds",
		"offerforge_journey_step_transitions_total",
		"offerforge_journey_searches_total",
		"offerforge_journey_search_duration_seconds",
		"offerforge_offers_submitted_total",
		"offerforge_offer_selling_price",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	m := NewManager(Config{Enabled: false})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", w.Code)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordSessionStarted("package", "create")
	m.RecordSessionStarted("package", "edit")
	m.RecordSessionEnded("package", "cancelled", time.Second)

	if got := testutil.ToFloat64(m.sessionsActive.WithLabelValues("package")); got != 1 {
		t.Errorf("Expected 1 active package session, got %v", got)
	}
	if got := testutil.ToFloat64(m.sessionsCreated.WithLabelValues("package", "edit")); got != 1 {
		t.Errorf("Expected 1 edit session, got %v", got)
	}
}

func TestSearchAndCacheCounters(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordSearch("activity-search", "discarded", time.Second)
	m.RecordSearch("activity-search", "failed", time.Second)
	m.CacheResult(stepgraph.ActivitySearch, true)
	m.CacheResult(stepgraph.ActivitySearch, false)
	m.CacheResult(stepgraph.ActivitySearch, false)

	if got := testutil.ToFloat64(m.searches.WithLabelValues("activity-search", "discarded")); got != 1 {
		t.Errorf("Expected 1 discarded search, got %v", got)
	}
	if got := testutil.CollectAndCount(m.searchDuration); got != 1 {
		t.Errorf("Expected only the failed search to be timed, got %d series", got)
	}
	if got := testutil.ToFloat64(m.cacheResults.WithLabelValues("activity-search", "miss")); got != 2 {
		t.Errorf("Expected 2 cache misses, got %v", got)
	}
}

func TestStartServer(t *testing.T) {
	cfg := DefaultConfig()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	cfg.Port = l.Addr().(*net.TCPAddr).Port
	l.Close()

	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.StartServer(ctx, cfg.Port, cfg.Path)
	}()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://127.0.0.1:" + strconv.Itoa(cfg.Port) + "/metrics")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Server did not stop")
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should not be enabled")
	}

	// These should not panic
	m.RecordSessionStarted("hotel", "create")
	m.RecordSessionEnded("hotel", "submitted", time.Second)
	m.RecordStepEntered("hotel", "summary")
	m.RecordValidationError("summary")
	m.RecordPersistenceError("session")
	m.RecordSearch("hotel-search", "completed", time.Second)
	m.CacheResult(stepgraph.HotelSearch, true)
	m.RecordOfferSubmitted("hotel", "create", "USD", 10)
	m.RecordHTTPRequest(context.Background(), "GET", "/health", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()

	if err := m.StartServer(context.Background(), 0, "/metrics"); err != nil {
		t.Errorf("Disabled StartServer should return nil, got %v", err)
	}
}

func BenchmarkRecordSearch(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 100 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordSearch("hotel-search", "completed", d)
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	m := NewManager(DefaultConfig())
	ctx := context.Background()
	d := 5 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordHTTPRequest(ctx, "GET", "/api/v1/journeys/{id}", "200", d)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordStepEntered("hotel", "summary")
		m.RecordSearch("hotel-search", "completed", time.Millisecond)
	}
}

func TestStartServer_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	m := NewManager(DefaultConfig())
	err = m.StartServer(context.Background(), l.Addr().(*net.TCPAddr).Port, "/metrics")
	if err == nil {
		t.Fatal("expected an error for a busy port")
	}
}
