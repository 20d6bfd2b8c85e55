package interceptors

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Metrics are the RPC collectors, labelled by service and method so the
// journey calls can be told apart from health checks.
type Metrics struct {
	handled  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
	messages *prometheus.CounterVec
}

// NewMetrics registers the RPC collectors with reg, or the default
// registerer when reg is nil. Registering twice reuses the first set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rpcLabels := []string{"service", "method"}

	return &Metrics{
		handled: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offerforge",
			Subsystem: "grpc",
			Name:      "handled_total",
			Help:      "RPCs completed, by status code.",
		}, append(rpcLabels, "code"))),
		latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "offerforge",
			Subsystem: "grpc",
			Name:      "handling_seconds",
			Help:      "Time spent handling an RPC, streams included.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, rpcLabels)),
		inflight: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "offerforge",
			Subsystem: "grpc",
			Name:      "in_flight",
			Help:      "RPCs currently being handled.",
		}, rpcLabels)),
		messages: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offerforge",
			Subsystem: "grpc",
			Name:      "stream_messages_total",
			Help:      "Stream messages, by direction.",
		}, append(rpcLabels, "direction"))),
	}
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

func defaults() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(nil)
	})
	return defaultMetrics
}

// observe starts tracking one RPC and returns the function that finishes it.
func (m *Metrics) observe(fullMethod string) func(err error) {
	service, method := splitMethod(fullMethod)
	start := time.Now()
	gauge := m.inflight.WithLabelValues(service, method)
	gauge.Inc()

	return func(err error) {
		gauge.Dec()
		m.latency.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		m.handled.WithLabelValues(service, method, status.Code(err).String()).Inc()
	}
}

// MetricsUnaryInterceptor records unary RPCs. A nil m uses a shared set on
// the default registerer.
func MetricsUnaryInterceptor(m *Metrics) grpc.UnaryServerInterceptor {
	if m == nil {
		m = defaults()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		done := m.observe(info.FullMethod)
		resp, err := handler(ctx, req)
		done(err)
		return resp, err
	}
}

// MetricsStreamInterceptor records streaming RPCs and counts their messages.
func MetricsStreamInterceptor(m *Metrics) grpc.StreamServerInterceptor {
	if m == nil {
		m = defaults()
	}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		done := m.observe(info.FullMethod)
		counted := &countingStream{ServerStream: ss}
		err := handler(srv, counted)
		done(err)

		service, method := splitMethod(info.FullMethod)
		m.messages.WithLabelValues(service, method, "received").Add(float64(counted.received))
		m.messages.WithLabelValues(service, method, "sent").Add(float64(counted.sent))
		return err
	}
}

type countingStream struct {
	grpc.ServerStream
	received, sent int
}

func (s *countingStream) RecvMsg(msg interface{}) error {
	err := s.ServerStream.RecvMsg(msg)
	if err == nil {
		s.received++
	}
	return err
}

func (s *countingStream) SendMsg(msg interface{}) error {
	err := s.ServerStream.SendMsg(msg)
	if err == nil {
		s.sent++
	}
	return err
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	var dup prometheus.AlreadyRegisteredError
	if errors.As(err, &dup) {
		if existing, ok := dup.ExistingCollector.(C); ok {
			return existing
		}
	}
	return c
}
