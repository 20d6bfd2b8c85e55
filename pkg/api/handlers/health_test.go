package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/version"
)

func TestHealthHandler_Health(t *testing.T) {
	eng := newTestEngine(t, engine.Config{Name: "test"})
	handler := NewHealthHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Health(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health() status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	eng := newTestEngine(t, engine.Config{Name: "test"})
	handler := NewHealthHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	handler.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Ready() status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestHealthHandler_NotStarted(t *testing.T) {
	eng, err := engine.New(engine.Config{Name: "idle"}, stubProvider(), engine.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	handler := NewHealthHandler(eng)

	for name, fn := range map[string]http.HandlerFunc{
		"health": handler.Health,
		"ready":  handler.Ready,
	} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodGet, "/"+name, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %v, want %v", name, w.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestHealthHandler_Status(t *testing.T) {
	eng := newTestEngine(t, engine.Config{Name: "status-test"})
	if _, err := eng.Create(context.Background(), "package"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	handler := NewHealthHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	handler.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status() status = %v, want %v", w.Code, http.StatusOK)
	}

	var body struct {
		Name     string            `json:"name"`
		State    string            `json:"state"`
		Sessions int               `json:"sessions"`
		Version  map[string]string `json:"version"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if body.Name != "status-test" || body.State != "running" || body.Sessions != 1 {
		t.Errorf("unexpected status %+v", body)
	}
	if body.Version["version"] != version.Version {
		t.Errorf("version = %q, want %q", body.Version["version"], version.Version)
	}
}
