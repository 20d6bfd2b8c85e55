package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const httpTracerName = "offerforge.http"

// TracingOptions defines HTTP tracing middleware behavior.
type TracingOptions struct {
	// SkipPaths are exact paths that never get a span.
	SkipPaths map[string]struct{}
	// SkipPrefixes are path prefixes that never get a span.
	SkipPrefixes []string
}

// DefaultTracingOptions skips probes, the event stream and the API docs.
func DefaultTracingOptions() TracingOptions {
	return TracingOptions{
		SkipPaths: map[string]struct{}{
			"/health":  {},
			"/ready":   {},
			"/metrics": {},
			"/ws":      {},
		},
		SkipPrefixes: []string{"/swagger/"},
	}
}

func (o TracingOptions) skip(path string) bool {
	if _, ok := o.SkipPaths[path]; ok {
		return true
	}
	for _, prefix := range o.SkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Tracing creates a server span per request, continuing the caller's trace.
// The span is renamed to the matched route once routing is done, and
// journey and offer routes carry the addressed id as an attribute.
func Tracing(opts TracingOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := otel.Tracer(httpTracerName).Start(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()

			if id := GetRequestID(ctx); id != "" {
				span.SetAttributes(attribute.String("http.request_id", id))
			}

			wrapped := wrap(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(wrapped, r)

			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", wrapped.statusCode),
			)
			if key, id := addressedEntity(r, route); id != "" {
				span.SetAttributes(attribute.String(key, id))
			}
			if wrapped.statusCode >= http.StatusInternalServerError {
				span.SetStatus(otelcodes.Error, http.StatusText(wrapped.statusCode))
			} else if wrapped.statusCode >= http.StatusBadRequest {
				// Client errors are not server faults.
				span.SetStatus(otelcodes.Unset, http.StatusText(wrapped.statusCode))
			} else {
				span.SetStatus(otelcodes.Ok, "")
			}
		})
	}
}

// routePattern prefers the matched chi route so session and offer IDs do
// not leak into span names and metric labels.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := strings.TrimSpace(rc.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// addressedEntity names the session or offer a route acts on.
func addressedEntity(r *http.Request, route string) (string, string) {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return "", ""
	}
	id := rc.URLParam("id")
	switch {
	case id == "":
		return "", ""
	case strings.HasPrefix(route, "/api/v1/journeys/"):
		return "journey.session_id", id
	case strings.HasPrefix(route, "/api/v1/offers/"):
		return "offer.id", id
	}
	return "", ""
}
