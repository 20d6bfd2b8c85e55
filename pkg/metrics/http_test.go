package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
)

func scrapeOpenMetrics(t *testing.T, m *Manager) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text; version=1.0.0")
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", w.Code)
	}
	return w.Body.String()
}

func TestRecordHTTPRequest_Exemplar(t *testing.T) {
	m := NewManager(DefaultConfig())

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xaa, 1},
		SpanID:     trace.SpanID{0xbb, 1},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	m.RecordHTTPRequest(ctx, http.MethodPost, "/api/v1/journeys", "201", 12*time.Millisecond)

	body := scrapeOpenMetrics(t, m)
	if !strings.Contains(body, `trace_id="`+spanCtx.TraceID().String()+`"`) {
		t.Error("expected trace id exemplar in OpenMetrics output")
	}
	if !strings.Contains(body, `span_id="`+spanCtx.SpanID().String()+`"`) {
		t.Error("expected span id exemplar in OpenMetrics output")
	}
}

func TestRecordHTTPRequest_NoSpanNoExemplar(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RecordHTTPRequest(context.Background(), http.MethodGet, "/api/v1/offers", "200", time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/offers", "200")); got != 1 {
		t.Fatalf("requests = %v, want 1", got)
	}
	if body := scrapeOpenMetrics(t, m); strings.Contains(body, "trace_id=") {
		t.Error("unexpected exemplar without a span")
	}
}

func TestActiveConnections(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.IncActiveConnections()
	m.IncActiveConnections()
	m.DecActiveConnections()

	if got := testutil.ToFloat64(m.httpConnections); got != 1 {
		t.Fatalf("active connections = %v, want 1", got)
	}
}
