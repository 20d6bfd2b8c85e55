// Package handlers implements the HTTP endpoints of the journey API.
package handlers

import (
	"net/http"

	"github.com/offerforge/offerforge/pkg/api/response"
	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/version"
)

// HealthHandler serves the probes and the status page.
type HealthHandler struct {
	engine *engine.Engine
}

func NewHealthHandler(eng *engine.Engine) *HealthHandler {
	return &HealthHandler{engine: eng}
}

// StatusBody is the /status response.
type StatusBody struct {
	engine.Status
	Version map[string]string `json:"version"`
}

// probeStatus is 200 when ok and 503 otherwise.
func probeStatus(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// Health is the liveness probe.
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	healthy := h.engine.IsHealthy()
	state := "ok"
	if !healthy {
		state = "unhealthy"
	}
	response.JSON(w, probeStatus(healthy), map[string]string{"status": state})
}

// Ready is the readiness probe. It fails while the engine recovers drafts
// or once it has begun shutting down.
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 503 {object} map[string]bool
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	ready := h.engine.IsReady()
	response.JSON(w, probeStatus(ready), map[string]bool{"ready": ready})
}

// Status reports engine counters and the build.
// @Summary Engine status
// @Tags health
// @Produce json
// @Success 200 {object} StatusBody
// @Router /status [get]
func (h *HealthHandler) Status(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, StatusBody{
		Status:  h.engine.GetStatus(),
		Version: version.Info(),
	})
}
