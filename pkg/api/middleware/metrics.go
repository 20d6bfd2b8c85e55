package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MetricsRecorder receives one observation per HTTP request.
type MetricsRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// Metrics records every request except scrapes of /metrics itself. The
// path label is the matched route, so session and offer ids never become
// label values. A panicking handler is recorded as a 500 and the panic
// continues up the chain.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			recorder.IncActiveConnections()
			rw := wrap(w)
			start := time.Now()
			completed := false
			defer func() {
				status := rw.statusCode
				if !completed {
					status = http.StatusInternalServerError
				}
				recorder.RecordHTTPRequest(r.Context(), r.Method, routePattern(r), strconv.Itoa(status), time.Since(start))
				recorder.DecActiveConnections()
			}()

			next.ServeHTTP(rw, r)
			completed = true
		})
	}
}

// normalizePath collapses UUID and numeric segments to ":id" for requests
// that did not match a route.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseUint(seg, 10, 64); err == nil {
			segments[i] = ":id"
		} else if len(seg) == 36 && uuid.Validate(seg) == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}
