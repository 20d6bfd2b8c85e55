package grpc

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const journeyService = "offerforge.v1.Journey"

func TestServer_Tracing(t *testing.T) {
	tests := []struct {
		name      string
		enabled   bool
		wantSpans bool
	}{
		{"enabled records health spans", true, true},
		{"disabled records nothing", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := useSpanRecorder(t)
			srv := startTracedServer(t, tt.enabled)

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			go srv.Health().Track(ctx, journeyService, func() bool { return true }, time.Hour)

			conn, err := ggrpc.NewClient(srv.Address(), ggrpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}
			defer conn.Close()

			client := grpc_health_v1.NewHealthClient(conn)
			var resp *grpc_health_v1.HealthCheckResponse
			deadline := time.Now().Add(2 * time.Second)
			for {
				resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: journeyService})
				if err == nil && resp.Status == grpc_health_v1.HealthCheckResponse_SERVING {
					break
				}
				if time.Now().After(deadline) {
					t.Fatalf("journey service never reported SERVING: %v %v", resp, err)
				}
				time.Sleep(10 * time.Millisecond)
			}

			spans := endedSpans(recorder, tt.wantSpans)
			if !tt.wantSpans {
				if len(spans) != 0 {
					t.Fatalf("expected no spans, got %d", len(spans))
				}
				return
			}
			for _, span := range spans {
				if span.Name() == "/grpc.health.v1.Health/Check" {
					return
				}
			}
			t.Fatalf("no health check span among %d spans", len(spans))
		})
	}
}

func startTracedServer(t *testing.T, tracing bool) *Server {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.EnableTracing = tracing
	cfg.EnableHealthCheck = true

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

// useSpanRecorder installs a recording tracer provider for the test.
func useSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return recorder
}

// endedSpans waits briefly for spans to end. When none are expected it
// still waits a little so late spans are caught.
func endedSpans(recorder *tracetest.SpanRecorder, expect bool) []sdktrace.ReadOnlySpan {
	timeout := 200 * time.Millisecond
	if expect {
		timeout = 2 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		spans := recorder.Ended()
		if (expect && len(spans) > 0) || time.Now().After(deadline) {
			return spans
		}
		time.Sleep(10 * time.Millisecond)
	}
}
