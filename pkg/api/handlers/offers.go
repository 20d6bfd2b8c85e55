package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/offerforge/offerforge/pkg/api/models"
	"github.com/offerforge/offerforge/pkg/api/response"
	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/offer"
)

// OfferHandler serves submitted offers.
type OfferHandler struct {
	engine *engine.Engine
	logger logger.Logger
}

// NewOfferHandler creates a new offer handler.
func NewOfferHandler(eng *engine.Engine, log logger.Logger) *OfferHandler {
	return &OfferHandler{engine: eng, logger: log}
}

// ListOffers handles GET /api/v1/offers
// @Summary List submitted offers
// @Tags offers
// @Produce json
// @Param product_type query string false "Comma separated product types"
// @Param limit query int false "Maximum number of results" default(20)
// @Param offset query int false "Offset for pagination" default(0)
// @Success 200 {object} models.OfferListResponse
// @Router /api/v1/offers [get]
func (h *OfferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	records, total, err := h.engine.ListOffers(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if records == nil {
		records = []*offer.Record{}
	}
	response.JSON(w, http.StatusOK, models.OfferListResponse{
		Offers: records,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetOffer handles GET /api/v1/offers/{id}
// @Summary Get a submitted offer
// @Tags offers
// @Produce json
// @Param id path string true "Offer ID"
// @Success 200 {object} offer.Record
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/offers/{id} [get]
func (h *OfferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.GetOffer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, rec)
}

// EditOffer handles POST /api/v1/offers/{id}/edit
// @Summary Open an edit session for a stored offer
// @Description Hydrates a session from the stored offer. Submitting it writes the next revision.
// @Tags offers
// @Produce json
// @Param id path string true "Offer ID"
// @Success 201 {object} journey.Session
// @Failure 404 {object} response.ErrorResponse
// @Failure 429 {object} response.ErrorResponse "Session limit reached"
// @Router /api/v1/offers/{id}/edit [post]
func (h *OfferHandler) EditOffer(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Edit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Created(w, "/api/v1/journeys/"+sess.ID, sess)
}
