package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

func (m *Manager) initHTTPMetrics(cfg Config) {
	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by method, route and status", "method", "path", "status")
	m.httpDuration = m.histogramVec("http_request_duration_seconds",
		"HTTP request latency by method and route", cfg.HTTPDurationBuckets, "method", "path")
	m.httpConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_active_connections",
		Help:      "HTTP requests currently being served",
	})
	m.registry.MustRegister(m.httpConnections)
}

// RecordHTTPRequest counts a finished request. Latency observations carry
// the trace and span ids as an exemplar when ctx holds a span.
func (m *Manager) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()

	obs := m.httpDuration.WithLabelValues(method, path)
	sc := trace.SpanContextFromContext(ctx)
	eo, ok := obs.(prometheus.ExemplarObserver)
	if !sc.IsValid() || !ok {
		obs.Observe(duration.Seconds())
		return
	}
	eo.ObserveWithExemplar(duration.Seconds(), prometheus.Labels{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	})
}

func (m *Manager) IncActiveConnections() {
	if m.enabled {
		m.httpConnections.Inc()
	}
}

func (m *Manager) DecActiveConnections() {
	if m.enabled {
		m.httpConnections.Dec()
	}
}
