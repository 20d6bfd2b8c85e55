package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

type observation struct {
	method, path, status string
	traced               bool
}

type fakeRecorder struct {
	mu     sync.Mutex
	seen   []observation
	active int
	peak   int
}

func (f *fakeRecorder) RecordHTTPRequest(ctx context.Context, method, path, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observation{
		method: method,
		path:   path,
		status: status,
		traced: trace.SpanContextFromContext(ctx).IsValid(),
	})
}

func (f *fakeRecorder) IncActiveConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active++
	f.peak = max(f.peak, f.active)
}

func (f *fakeRecorder) DecActiveConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
}

func (f *fakeRecorder) only(t *testing.T) observation {
	t.Helper()
	if len(f.seen) != 1 {
		t.Fatalf("recorded %d requests, want 1: %+v", len(f.seen), f.seen)
	}
	return f.seen[0]
}

func TestMetrics_RecordsStatus(t *testing.T) {
	tests := []struct {
		name   string
		method string
		write  func(http.ResponseWriter)
		want   string
	}{
		{"implicit ok", http.MethodGet, func(w http.ResponseWriter) { _, _ = w.Write([]byte("ok")) }, "200"},
		{"created", http.MethodPost, func(w http.ResponseWriter) { w.WriteHeader(http.StatusCreated) }, "201"},
		{"validation failure", http.MethodPost, func(w http.ResponseWriter) { w.WriteHeader(http.StatusUnprocessableEntity) }, "422"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			handler := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { tt.write(w) }))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, "/api/v1/journeys", nil))

			got := rec.only(t)
			if got.method != tt.method || got.status != tt.want {
				t.Errorf("recorded %+v, want %s %s", got, tt.method, tt.want)
			}
			if rec.active != 0 || rec.peak != 1 {
				t.Errorf("active = %d peak = %d, want 0 and 1", rec.active, rec.peak)
			}
		})
	}
}

func TestMetrics_SkipsScrapes(t *testing.T) {
	rec := &fakeRecorder{}
	handler := Metrics(rec)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if len(rec.seen) != 0 || rec.peak != 0 {
		t.Errorf("scrape was recorded: %+v", rec.seen)
	}
}

func TestMetrics_PanicCountsAsServerError(t *testing.T) {
	rec := &fakeRecorder{}
	handler := Metrics(rec)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("pricing exploded")
	}))

	defer func() {
		if recover() == nil {
			t.Error("expected the panic to continue")
		}
		if got := rec.only(t); got.status != "500" {
			t.Errorf("status = %s, want 500", got.status)
		}
		if rec.active != 0 {
			t.Errorf("active connections = %d, want 0", rec.active)
		}
	}()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/journeys", nil))
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Get("/api/v1/journeys/{id}/totals", func(w http.ResponseWriter, _ *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/journeys/sess-abc/totals", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/journeys/sess-xyz/totals", nil))

	if len(rec.seen) != 2 {
		t.Fatalf("recorded %d requests, want 2", len(rec.seen))
	}
	for _, o := range rec.seen {
		if o.path != "/api/v1/journeys/{id}/totals" {
			t.Errorf("path label = %q, want route pattern", o.path)
		}
	}
}

func TestMetrics_SeesTraceContext(t *testing.T) {
	useTracingRecorder(t)

	rec := &fakeRecorder{}
	handler := Tracing(DefaultTracingOptions())(Metrics(rec)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/offers", nil))

	if !rec.only(t).traced {
		t.Error("expected the request span on the recorder context")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/api/v1/journeys", "/api/v1/journeys"},
		{"/api/v1/journeys/550e8400-e29b-41d4-a716-446655440000", "/api/v1/journeys/:id"},
		{"/api/v1/offers/123/revisions", "/api/v1/offers/:id/revisions"},
		{"/api/v1/offers/sess-1", "/api/v1/offers/sess-1"},
		{"/health", "/health"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.input); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
