// Package offer is the persistence boundary of the composition engine: it
// turns a finished session into the payload stored as an offer and maps
// stored offers back into hydration documents.
package offer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/totals"
)

// Duration is the stay length of an offer.
type Duration struct {
	Nights int `json:"nights"`
	Days   int `json:"days"`
}

// Validity is the sale window of an offer.
type Validity struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Pricing is the aggregate price of an offer.
type Pricing struct {
	Base       pricing.Money `json:"base"`
	Selling    pricing.Money `json:"selling"`
	Commission pricing.Money `json:"commission"`
	Currency   string        `json:"currency"`
}

// Component is one priced component of an offer.
type Component struct {
	Slot    stepgraph.Slot     `json:"slot"`
	RefID   string             `json:"refId"`
	Display journey.Display    `json:"display"`
	Pricing pricing.RawPricing `json:"pricing"`
	RoomID  string             `json:"roomId,omitempty"`
	Nights  int                `json:"nights,omitempty"`
	Base    pricing.Money      `json:"base"`
	Selling pricing.Money      `json:"selling"`
}

// Payload is the serialized form of a submitted session.
type Payload struct {
	ProductType stepgraph.ProductType `json:"productType"`
	Destination journey.Destination   `json:"destination"`
	Duration    Duration              `json:"duration"`
	Markup      pricing.Markup        `json:"markup"`
	Validity    *Validity             `json:"validity,omitempty"`
	Components  []Component           `json:"components"`
	Pricing     Pricing               `json:"pricing"`
}

// Build serializes a session and its totals. Package offers carry no
// validity window; other offers use the session window, falling back to
// the validity of the hotel's pricing room.
func Build(s *journey.Session, t totals.Totals) Payload {
	p := Payload{
		ProductType: s.ProductType,
		Destination: s.Destination,
		Duration: Duration{
			Nights: s.DurationNights,
			Days:   s.DurationDays(),
		},
		Markup:     s.Markup,
		Components: []Component{},
		Pricing: Pricing{
			Base:       t.BaseCost,
			Selling:    t.SellingPrice,
			Commission: t.Commission,
			Currency:   t.Currency,
		},
	}

	type lineKey struct {
		slot stepgraph.Slot
		ref  string
	}
	lines := make(map[lineKey]totals.Line, len(t.Lines))
	for _, l := range t.Lines {
		lines[lineKey{l.Slot, l.RefID}] = l
	}

	for _, slot := range stepgraph.Slots() {
		for _, c := range s.Components[slot] {
			l := lines[lineKey{slot, c.RefID}]
			p.Components = append(p.Components, Component{
				Slot:    slot,
				RefID:   c.RefID,
				Display: c.Display,
				Pricing: c.Pricing,
				RoomID:  c.RoomID,
				Nights:  l.Nights,
				Base:    l.Base,
				Selling: l.Selling,
			})
		}
	}

	if s.ProductType != stepgraph.Package {
		p.Validity = validity(s)
	}
	return p
}

func validity(s *journey.Session) *Validity {
	if s.Validity.From != nil || s.Validity.To != nil {
		return &Validity{From: s.Validity.From, To: s.Validity.To}
	}
	if hotel, ok := s.Component(stepgraph.SlotHotel); ok && (hotel.ValidFrom != nil || hotel.ValidTo != nil) {
		return &Validity{From: hotel.ValidFrom, To: hotel.ValidTo}
	}
	return nil
}

// Document converts the payload into the hydration document used to edit
// the offer identified by id.
func (p Payload) Document(id string) (*journey.OfferDocument, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode offer payload: %w", err)
	}
	var doc journey.OfferDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode offer document: %w", err)
	}
	doc.ID = id
	return &doc, nil
}

// Record is a stored offer.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Revision  int       `json:"revision"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord wraps a payload into a new offer record.
func NewRecord(sessionID string, p Payload, now time.Time) *Record {
	return &Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Revision:  1,
		Payload:   p,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Revise returns the record updated with a new payload, keeping its id.
func (r *Record) Revise(sessionID string, p Payload, now time.Time) *Record {
	return &Record{
		ID:        r.ID,
		SessionID: sessionID,
		Revision:  r.Revision + 1,
		Payload:   p,
		CreatedAt: r.CreatedAt,
		UpdatedAt: now,
	}
}
