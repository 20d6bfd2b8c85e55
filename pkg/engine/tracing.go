package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const engineTracerName = "offerforge.engine"

const (
	spanRecover = "engine.recover"
	spanHydrate = "journey.hydrate"
	spanSubmit  = "journey.submit"
)

func engineTracer() trace.Tracer {
	return otel.Tracer(engineTracerName)
}
