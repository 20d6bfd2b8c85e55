// Package tracing installs the process-wide OpenTelemetry tracer provider
// and propagator.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/offerforge/offerforge/config"
	"github.com/offerforge/offerforge/pkg/logger"
)

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

// Service identifies the process in exported spans.
type Service struct {
	Name        string
	Version     string
	Environment string
}

type exporterFactory func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error)

// exporters maps the configured exporter name to its constructor.
var exporters = map[string]exporterFactory{
	"otlpgrpc": newOTLPGRPCExporter,
}

func newOTLPGRPCExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(normalizeEndpoint(cfg.Endpoint)),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if !secureEndpoint(cfg.Endpoint) {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// exportFailure describes one batch the collector did not accept.
type exportFailure struct {
	Err      error
	Exporter string
	Endpoint string
	Spans    int
}

// exportFailureLog throttles failure logs while a collector is down.
var exportFailureLog = rate.Sometimes{First: 3, Interval: time.Minute}

var onExportFailure = func(f exportFailure) {
	exportFailureLog.Do(func() {
		logger.Warn("tracing export failed",
			"error", f.Err,
			"exporter", f.Exporter,
			"endpoint", f.Endpoint,
			"span_count", f.Spans,
		)
	})
}

// lossyExporter drops batches the collector rejects instead of failing the
// batch processor. Spans are diagnostic; a collector outage must not back
// up journey requests.
type lossyExporter struct {
	sdktrace.SpanExporter
	name     string
	endpoint string
}

func (e lossyExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if err := e.SpanExporter.ExportSpans(ctx, spans); err != nil {
		onExportFailure(exportFailure{Err: err, Exporter: e.name, Endpoint: e.endpoint, Spans: len(spans)})
	}
	return nil
}

func installPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

func validate(cfg config.TracingConfig) (string, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	var errs []error
	if _, ok := exporters[name]; !ok {
		errs = append(errs, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter))
	}
	if normalizeEndpoint(cfg.Endpoint) == "" {
		errs = append(errs, errors.New("tracing endpoint cannot be empty"))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, errors.New("tracing timeout must be > 0"))
	}
	return name, errors.Join(errs...)
}

// Init installs the global tracer provider and propagator. When tracing is
// disabled a noop provider is installed; incoming trace context is still
// propagated so downstream services see the caller's trace.
func Init(ctx context.Context, cfg config.TracingConfig, svc Service) (ShutdownFunc, error) {
	installPropagator()
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	name, err := validate(cfg)
	if err != nil {
		return nil, err
	}
	exp, err := exporters[name](ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create tracing exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(serviceAttributes(svc)...))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(lossyExporter{SpanExporter: exp, name: name, endpoint: normalizeEndpoint(cfg.Endpoint)}),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(selectSampler(cfg)),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		flushErr := tp.ForceFlush(ctx)
		if flushErr != nil {
			flushErr = fmt.Errorf("flush tracing provider: %w", flushErr)
		}
		shutdownErr := tp.Shutdown(ctx)
		if shutdownErr != nil {
			shutdownErr = fmt.Errorf("shutdown tracing provider: %w", shutdownErr)
		}
		return errors.Join(flushErr, shutdownErr)
	}, nil
}

func serviceAttributes(svc Service) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(svc.Name),
		semconv.ServiceVersion(svc.Version),
	}
	if svc.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(svc.Environment))
	}
	return attrs
}

func selectSampler(cfg config.TracingConfig) sdktrace.Sampler {
	switch strings.ToLower(strings.TrimSpace(cfg.Sampler)) {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
}

func secureEndpoint(endpoint string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(endpoint)), "https://")
}

// normalizeEndpoint reduces a collector URL to the host:port the gRPC
// exporter dials.
func normalizeEndpoint(endpoint string) string {
	raw := strings.TrimSpace(endpoint)
	if !strings.Contains(raw, "://") {
		return raw
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}
