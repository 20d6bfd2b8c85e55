// Package models defines API request/response data structures.
package models

import (
	"time"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/navigator"
	"github.com/offerforge/offerforge/pkg/offer"
	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/totals"
)

// CreateJourneyRequest opens a fresh composition session.
type CreateJourneyRequest struct {
	// ProductType selects the step graph.
	ProductType string `json:"product_type" validate:"required,oneof=hotel flight package transport activity" example:"package"`
}

// SelectRequest picks a candidate for a slot.
type SelectRequest struct {
	Slot        string `json:"slot" validate:"required,oneof=hotel flight-outbound flight-return transport-arrival transport-departure activity" example:"hotel"`
	CandidateID string `json:"candidate_id" validate:"required,max=200" example:"htl-1042"`
}

// DeselectRequest removes a selected component.
type DeselectRequest struct {
	Slot string `json:"slot" validate:"required,oneof=hotel flight-outbound flight-return transport-arrival transport-departure activity" example:"activity"`

	// RefID picks one activity; it is ignored for single-valued slots.
	RefID string `json:"ref_id,omitempty" validate:"max=200" example:"act-7"`
}

// DestinationRequest sets where the offer takes place.
type DestinationRequest struct {
	City    string `json:"city" validate:"required,max=200" example:"Lisbon"`
	Country string `json:"country,omitempty" validate:"max=100" example:"PT"`
}

// MarkupRequest sets the margin policy.
type MarkupRequest struct {
	Kind  string  `json:"kind" validate:"required,oneof=percentage fixed" example:"percentage"`
	Value float64 `json:"value" validate:"min=0" example:"12.5"`
}

// Markup converts the request to a pricing markup.
func (r MarkupRequest) Markup() pricing.Markup {
	return pricing.Markup{Kind: pricing.MarkupKind(r.Kind), Value: r.Value}
}

// DurationRequest sets the stay length.
type DurationRequest struct {
	Nights int `json:"nights" validate:"min=0,max=365" example:"7"`
}

// ValidityRequest sets the sale window of a non-package offer.
type ValidityRequest struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Validity converts the request to a journey validity.
func (r ValidityRequest) Validity() journey.Validity {
	return journey.Validity{From: r.From, To: r.To}
}

// FilterRequest narrows the candidate list of a selection step.
type FilterRequest struct {
	Step string `json:"step" validate:"required" example:"hotel-select"`
	Text string `json:"text" validate:"max=200" example:"sea view"`
}

// TransitionResponse reports a step change and the resulting session.
type TransitionResponse struct {
	Transition navigator.Transition `json:"transition"`
	Session    *journey.Session     `json:"session"`
}

// JourneyListResponse is a page of open sessions.
type JourneyListResponse struct {
	Journeys []*journey.Session `json:"journeys"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// TotalsResponse is the priced view of a session.
type TotalsResponse struct {
	SessionID string        `json:"session_id"`
	Totals    totals.Totals `json:"totals"`
}

// RoomQuotesResponse previews the markup of every room of the selected hotel.
type RoomQuotesResponse struct {
	SessionID string              `json:"session_id"`
	Rooms     []pricing.RoomQuote `json:"rooms"`
}

// OfferListResponse is a page of stored offers.
type OfferListResponse struct {
	Offers []*offer.Record `json:"offers"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// StatusResponse acknowledges an action without a richer result.
type StatusResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
