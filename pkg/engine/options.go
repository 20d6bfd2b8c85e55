package engine

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/storage"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithStorage sets the draft and offer storage. Defaults to memory.
func WithStorage(s storage.Storage) Option {
	return func(e *Engine) {
		if s != nil {
			e.storage = s
		}
	}
}

// WithMetrics sets the metrics recorder for the engine.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithEventBroadcaster sets an event broadcaster for session events.
func WithEventBroadcaster(broadcaster EventBroadcaster) Option {
	return func(e *Engine) {
		if broadcaster != nil {
			e.events = broadcaster
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry replaces the default step graphs.
func WithRegistry(r *stepgraph.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithTracer sets the tracer used for engine and search spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
