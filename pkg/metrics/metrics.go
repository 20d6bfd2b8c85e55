// Package metrics exposes the journey, search and offer collectors on a
// private Prometheus registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "offerforge"

// Manager owns every collector. A disabled Manager accepts all calls and
// records nothing.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	sessionsCreated   *prometheus.CounterVec
	sessionsActive    *prometheus.GaugeVec
	sessionDuration   *prometheus.HistogramVec
	stepTransitions   *prometheus.CounterVec
	validationErrors  *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec

	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	cacheResults   *prometheus.CounterVec

	offersSubmitted *prometheus.CounterVec
	offerSelling    *prometheus.HistogramVec

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpConnections prometheus.Gauge
}

// Config selects the endpoint and histogram layouts.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	SessionDurationBuckets []float64
	SearchDurationBuckets  []float64
	OfferValueBuckets      []float64
	HTTPDurationBuckets    []float64
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Port:    9091,
		Path:    "/metrics",
		// Sessions are human paced; searches wait on suppliers.
		SessionDurationBuckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		SearchDurationBuckets:  []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		OfferValueBuckets:      []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		HTTPDurationBuckets:    []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager registers every collector on a fresh registry, together
// with the Go runtime and process collectors.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return NoOpManager()
	}

	m := &Manager{registry: prometheus.NewRegistry(), enabled: true}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.initJourneyMetrics(cfg)
	m.initSearchMetrics(cfg)
	m.initOfferMetrics(cfg)
	m.initHTTPMetrics(cfg)
	return m
}

// NoOpManager records nothing and serves no endpoint.
func NoOpManager() *Manager {
	return &Manager{}
}

func (m *Manager) Enabled() bool { return m.enabled }

// Registry is nil when disabled.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus or OpenMetrics format. A
// disabled manager answers 404.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          m.registry,
	})
}

// StartServer serves Handler on port until ctx is cancelled, then shuts
// down and returns nil. It returns at once when disabled.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	m.registry.MustRegister(c)
	return c
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	m.registry.MustRegister(g)
	return g
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	m.registry.MustRegister(h)
	return h
}
