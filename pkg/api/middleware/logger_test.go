package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/offerforge/offerforge/pkg/logger"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		handlerBody   string
		wantLevel     string
	}{
		{
			name:          "successful GET request",
			method:        http.MethodGet,
			path:          "/api/v1/journeys",
			handlerStatus: http.StatusOK,
			handlerBody:   `{"status":"ok"}`,
			wantLevel:     "INFO",
		},
		{
			name:          "POST request with 201",
			method:        http.MethodPost,
			path:          "/api/v1/journeys",
			handlerStatus: http.StatusCreated,
			handlerBody:   `{"id":"123"}`,
			wantLevel:     "INFO",
		},
		{
			name:          "validation failure",
			method:        http.MethodPost,
			path:          "/api/v1/journeys/abc/advance",
			handlerStatus: http.StatusUnprocessableEntity,
			handlerBody:   `{"error":"city is required"}`,
			wantLevel:     "WARN",
		},
		{
			name:          "server error",
			method:        http.MethodGet,
			path:          "/api/v1/offers",
			handlerStatus: http.StatusInternalServerError,
			handlerBody:   `{"error":"boom"}`,
			wantLevel:     "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.New(&logger.Config{
				Level:  logger.InfoLevel,
				Format: "json",
				Writer: &buf,
			})

			handler := RequestID()(Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
				w.Write([]byte(tt.handlerBody))
			})))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set(RequestIDHeader, "req-42")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.handlerStatus)
			}
			if w.Body.String() != tt.handlerBody {
				t.Errorf("body = %v, want %v", w.Body.String(), tt.handlerBody)
			}

			var entry map[string]any
			if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
				t.Fatalf("log line is not json: %v (%q)", err, buf.String())
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %v", entry["level"], tt.wantLevel)
			}
			if entry["status"] != float64(tt.handlerStatus) {
				t.Errorf("status field = %v, want %d", entry["status"], tt.handlerStatus)
			}
			if entry["request_id"] != "req-42" {
				t.Errorf("request_id = %v, want req-42", entry["request_id"])
			}
			if entry["size"] != float64(len(tt.handlerBody)) {
				t.Errorf("size = %v, want %d", entry["size"], len(tt.handlerBody))
			}
		})
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusAccepted {
		t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusAccepted)
	}
	if wrap(rw) != rw {
		t.Error("wrap should not double wrap")
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap should return the underlying writer")
	}
}
