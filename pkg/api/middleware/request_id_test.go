package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"caller id kept", "journey-req-1", true},
		{"surrounding space trimmed", "  journey-req-2  ", true},
		{"oversized id replaced", strings.Repeat("x", maxRequestIDLen+1), false},
		{"non-ascii id replaced", "réservation-1", false},
		{"control characters replaced", "req\x01id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inContext string
			handler := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				inContext = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/journeys", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			echoed := w.Header().Get(RequestIDHeader)
			if echoed == "" || echoed != inContext {
				t.Fatalf("header %q and context %q must match and be set", echoed, inContext)
			}
			if tt.keep {
				if want := strings.TrimSpace(tt.incoming); inContext != want {
					t.Errorf("request id = %q, want %q", inContext, want)
				}
				return
			}
			if _, err := uuid.Parse(inContext); err != nil {
				t.Errorf("generated id %q is not a UUID: %v", inContext, err)
			}
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}
