// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/offerforge/offerforge/pkg/api/middleware"
	"github.com/offerforge/offerforge/pkg/api/models"
	"github.com/offerforge/offerforge/pkg/api/response"
	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/navigator"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/storage"
)

const (
	maxBodyBytes = 1 << 20

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// JourneyHandler handles composition session endpoints.
type JourneyHandler struct {
	engine    *engine.Engine
	logger    logger.Logger
	validator *validator.Validate
}

// NewJourneyHandler creates a new journey handler.
func NewJourneyHandler(eng *engine.Engine, log logger.Logger) *JourneyHandler {
	return &JourneyHandler{
		engine:    eng,
		logger:    log,
		validator: validator.New(),
	}
}

// CreateJourney handles POST /api/v1/journeys
// @Summary Start a composition session
// @Description Open a fresh session for a product type
// @Tags journeys
// @Accept json
// @Produce json
// @Param request body models.CreateJourneyRequest true "Product type"
// @Success 201 {object} journey.Session
// @Failure 400 {object} response.ErrorResponse
// @Failure 429 {object} response.ErrorResponse "Session limit reached"
// @Router /api/v1/journeys [post]
func (h *JourneyHandler) CreateJourney(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJourneyRequest
	if !h.decode(w, r, &req) {
		return
	}
	pt, err := stepgraph.ParseProductType(req.ProductType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.engine.Create(r.Context(), pt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, "/api/v1/journeys/"+sess.ID, sess)
}

// HydrateJourney handles POST /api/v1/journeys/hydrate
// @Summary Start an edit session from an offer document
// @Description Rebuild a session from a persisted offer document. The product type is inferred when absent.
// @Tags journeys
// @Accept json
// @Produce json
// @Param document body journey.OfferDocument true "Offer document"
// @Success 201 {object} journey.Session
// @Failure 400 {object} response.ErrorResponse "Malformed document or undeterminable product type"
// @Router /api/v1/journeys/hydrate [post]
func (h *JourneyHandler) HydrateJourney(w http.ResponseWriter, r *http.Request) {
	var doc journey.OfferDocument
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&doc); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", response.ErrInvalidInput, err))
		return
	}
	sess, err := h.engine.Hydrate(r.Context(), &doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, "/api/v1/journeys/"+sess.ID, sess)
}

// GetJourney handles GET /api/v1/journeys/{id}
// @Summary Get a session
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} journey.Session
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/journeys/{id} [get]
func (h *JourneyHandler) GetJourney(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, sess)
}

// ListJourneys handles GET /api/v1/journeys
// @Summary List draft sessions
// @Tags journeys
// @Produce json
// @Param product_type query string false "Comma separated product types"
// @Param limit query int false "Maximum number of results" default(20)
// @Param offset query int false "Offset for pagination" default(0)
// @Success 200 {object} models.JourneyListResponse
// @Router /api/v1/journeys [get]
func (h *JourneyHandler) ListJourneys(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	sessions, total, err := h.engine.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*journey.Session{}
	}
	response.JSON(w, http.StatusOK, models.JourneyListResponse{
		Journeys: sessions,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// Advance handles POST /api/v1/journeys/{id}/advance
// @Summary Move to the next step
// @Description Validates the current step and advances. Entering a searching step starts a candidate fetch.
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.TransitionResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse "Current step is incomplete"
// @Router /api/v1/journeys/{id}/advance [post]
func (h *JourneyHandler) Advance(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Advance)
}

// Skip handles POST /api/v1/journeys/{id}/skip
// @Summary Skip an optional step
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.TransitionResponse
// @Failure 422 {object} response.ErrorResponse "Step is not optional"
// @Router /api/v1/journeys/{id}/skip [post]
func (h *JourneyHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Skip)
}

// Retreat handles POST /api/v1/journeys/{id}/retreat
// @Summary Move back to the previous input step
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.TransitionResponse
// @Router /api/v1/journeys/{id}/retreat [post]
func (h *JourneyHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.Retreat)
}

// RetrySearch handles POST /api/v1/journeys/{id}/retry-search
// @Summary Re-run the candidate fetch of the current step
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.TransitionResponse
// @Router /api/v1/journeys/{id}/retry-search [post]
func (h *JourneyHandler) RetrySearch(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.RetrySearch)
}

func (h *JourneyHandler) transition(w http.ResponseWriter, r *http.Request,
	move func(context.Context, string) (navigator.Transition, error)) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	tr, err := move(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.engine.Get(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, models.TransitionResponse{Transition: tr, Session: sess})
}

// Select handles POST /api/v1/journeys/{id}/select
// @Summary Select a candidate
// @Tags journeys
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.SelectRequest true "Selection"
// @Success 200 {object} journey.Session
// @Failure 422 {object} response.ErrorResponse "Unknown candidate or unreachable slot"
// @Router /api/v1/journeys/{id}/select [post]
func (h *JourneyHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req models.SelectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id string) error {
		return h.engine.Select(ctx, id, stepgraph.Slot(req.Slot), req.CandidateID)
	})
}

// Deselect handles POST /api/v1/journeys/{id}/deselect
// @Summary Remove a selected component
// @Tags journeys
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.DeselectRequest true "Component"
// @Success 200 {object} journey.Session
// @Router /api/v1/journeys/{id}/deselect [post]
func (h *JourneyHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	var req models.DeselectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id string) error {
		return h.engine.Deselect(ctx, id, stepgraph.Slot(req.Slot), req.RefID)
	})
}

// SetDestination handles PUT /api/v1/journeys/{id}/destination
// @Summary Set the destination
// @Description Changing the destination clears candidate pools and searched selections.
// @Tags journeys
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.DestinationRequest true "Destination"
// @Success 200 {object} journey.Session
// @Router /api/v1/journeys/{id}/destination [put]
func (h *JourneyHandler) SetDestination(w http.ResponseWriter, r *http.Request) {
	var req models.DestinationRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id string) error {
		return h.engine.SetDestination(ctx, id, journey.Destination{City: req.City, Country: req.Country})
	})
}

// SetMarkup handles PUT /api/v1/journeys/{id}/markup
// @Summary Set the markup
// @Tags journeys
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.MarkupRequest true "Markup"
// @Success 200 {object} journey.Session
// @Router /api/v1/journeys/{id}/markup [put]
func (h *JourneyHandler) SetMarkup(w http.ResponseWriter, r *http.Request) {
	var req models.MarkupRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id string) error {
		return h.engine.SetMarkup(ctx, id, req.Markup())
	})
}

// SetDuration handles PUT /api/v1/journeys/{id}/duration
// @Summary Set the stay length in nights
// @Tags journeys
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.DurationRequest true "Duration"
// @Success 200 {object} journey.Session
// @Router /api/v1/journeys/{id}/duration [put]
func (h *JourneyHandler) SetDuration(w http.ResponseWriter, r *http.Request) {
	var req models.DurationRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id string) error {
		return h.engine.SetDuration(ctx, id, req.Nights)
	})
}

// SetValidity handles PUT /api/v1/journeys/{id}/validity
// @Summary Set the sale window
// @Tags journeys
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.ValidityRequest true "Validity"
// @Success 200 {object} journey.Session
// @Router /api/v1/journeys/{id}/validity [put]
func (h *JourneyHandler) SetValidity(w http.ResponseWriter, r *http.Request) {
	var req models.ValidityRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id string) error {
		return h.engine.SetValidity(ctx, id, req.Validity())
	})
}

// SetFilter handles PUT /api/v1/journeys/{id}/filter
// @Summary Filter the candidates of a selection step
// @Tags journeys
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.FilterRequest true "Filter"
// @Success 200 {object} journey.Session
// @Router /api/v1/journeys/{id}/filter [put]
func (h *JourneyHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req models.FilterRequest
	if !h.decode(w, r, &req) {
		return
	}
	step := stepgraph.StepID(req.Step)
	if !stepgraph.Known(step) {
		h.fail(w, r, fmt.Errorf("%w: unknown step %q", response.ErrInvalidInput, req.Step))
		return
	}
	h.mutate(w, r, func(ctx context.Context, id string) error {
		return h.engine.SetFilter(ctx, id, step, req.Text)
	})
}

// Reset handles POST /api/v1/journeys/{id}/reset
// @Summary Reset a session to its initial step
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} journey.Session
// @Router /api/v1/journeys/{id}/reset [post]
func (h *JourneyHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.engine.Reset)
}

// mutate applies an action and answers with the updated session.
func (h *JourneyHandler) mutate(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) error) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := apply(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.engine.Get(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, sess)
}

// GetTotals handles GET /api/v1/journeys/{id}/totals
// @Summary Get the priced view of a session
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.TotalsResponse
// @Router /api/v1/journeys/{id}/totals [get]
func (h *JourneyHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.engine.Totals(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, models.TotalsResponse{SessionID: id, Totals: t})
}

// GetRoomQuotes handles GET /api/v1/journeys/{id}/rooms
// @Summary Preview the markup of every room of the selected hotel
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.RoomQuotesResponse
// @Router /api/v1/journeys/{id}/rooms [get]
func (h *JourneyHandler) GetRoomQuotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	quotes, err := h.engine.RoomQuotes(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, models.RoomQuotesResponse{SessionID: id, Rooms: quotes})
}

// Submit handles POST /api/v1/journeys/{id}/submit
// @Summary Submit a finished session as an offer
// @Description Stores the offer (or a new revision of the edited offer) and closes the session.
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 201 {object} offer.Record
// @Failure 422 {object} response.ErrorResponse "Session is not on its summary step"
// @Router /api/v1/journeys/{id}/submit [post]
func (h *JourneyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, "/api/v1/offers/"+rec.ID, rec)
}

// CancelJourney handles DELETE /api/v1/journeys/{id}
// @Summary Discard a session and its draft
// @Tags journeys
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.StatusResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/journeys/{id} [delete]
func (h *JourneyHandler) CancelJourney(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Cancel(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, models.StatusResponse{ID: id, Status: "cancelled"})
}

// decode reads and validates a JSON body, answering 400 on failure.
func (h *JourneyHandler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	return decodeBody(w, r, h.validator, h.logger, into)
}

func (h *JourneyHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v *validator.Validate, log logger.Logger, into any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(into); err != nil {
		log.Debug("Failed to decode request", "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", requestID(r))
		return false
	}
	if err := v.Struct(into); err != nil {
		response.HandleError(w, err, requestID(r))
		return false
	}
	return true
}

// writeError maps err to a response. Server-side failures are logged.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	status := response.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "Request failed",
			"path", r.URL.Path,
			"session_id", chi.URLParam(r, "id"),
			"error", err,
		)
	}
	response.HandleError(w, err, requestID(r))
}

func requestID(r *http.Request) string {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return id
	}
	return "unknown"
}

// parseFilter reads product_type, limit and offset query parameters.
func parseFilter(r *http.Request) *storage.Filter {
	q := r.URL.Query()
	filter := &storage.Filter{Limit: defaultPageLimit}

	if raw := q.Get("product_type"); raw != "" {
		for _, pt := range strings.Split(raw, ",") {
			if pt = strings.ToLower(strings.TrimSpace(pt)); pt != "" {
				filter.ProductTypes = append(filter.ProductTypes, pt)
			}
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = min(limit, maxPageLimit)
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}
	return filter
}
