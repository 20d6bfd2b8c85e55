// Package pricing converts heterogeneous inventory price payloads into one
// canonical base adult price and applies markup policies on top of it.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"time"
)

// Occupancy keys a hotel room's capacity price table.
type Occupancy string

const (
	OccupancySingle Occupancy = "single"
	OccupancyDouble Occupancy = "double"
	OccupancyTriple Occupancy = "triple"
	OccupancyQuad   Occupancy = "quad"
)

// OccupancyPreference is the order in which a room's capacity table is read.
var OccupancyPreference = []Occupancy{
	OccupancyDouble,
	OccupancySingle,
	OccupancyTriple,
	OccupancyQuad,
}

// RawPricing is the pricing payload carried by an inventory item.
//
// Exactly which fields are populated depends on the item:
//   - hotel rooms carry CapacityPrices, older rooms a flat SellingPrice
//   - flight legs carry Pricing.Adult as {"cost": n}
//   - transports and activities carry BasePrice or Pricing.Adult as a number
type RawPricing struct {
	CapacityPrices map[Occupancy]PassengerPrices `json:"capacityPrices,omitempty"`
	SellingPrice   Amount                        `json:"sellingPrice,omitzero"`
	Currency       string                        `json:"currency,omitempty"`
	BasePrice      Amount                        `json:"basePrice,omitzero"`
	Pricing        *PassengerFares               `json:"pricing,omitempty"`
}

// Clone returns a copy of p that shares no map or pointer with it.
func (p RawPricing) Clone() RawPricing {
	p.CapacityPrices = maps.Clone(p.CapacityPrices)
	if p.Pricing != nil {
		fares := *p.Pricing
		p.Pricing = &fares
	}
	return p
}

// ExtractBaseAdultPrice returns the base adult price of a payload.
// The result is always finite and non-negative; absent or malformed fields
// count as zero. Fields are tried in order and an unusable field falls
// through to the next one.
func ExtractBaseAdultPrice(p RawPricing) float64 {
	if p.CapacityPrices != nil {
		if v, ok := capacityAdultPrice(p.CapacityPrices); ok {
			return v
		}
	}
	// Rooms migrated from the flat format keep their sellingPrice.
	candidates := []Amount{p.SellingPrice, p.BasePrice}
	if p.Pricing != nil {
		candidates = append(candidates, p.Pricing.Adult.Cost)
	}
	for _, a := range candidates {
		if a.Usable() {
			v, _ := a.Value()
			return v
		}
	}
	return 0
}

func capacityAdultPrice(table map[Occupancy]PassengerPrices) (float64, bool) {
	for _, occ := range OccupancyPreference {
		cell, ok := table[occ]
		if !ok || !cell.Adult.Usable() {
			continue
		}
		v, _ := cell.Adult.Value()
		return v, true
	}
	return 0, false
}

// MarkupKind selects how a markup value is applied.
type MarkupKind string

const (
	MarkupPercentage MarkupKind = "percentage"
	MarkupFixed      MarkupKind = "fixed"
)

// Markup is the margin policy applied on top of a base cost.
type Markup struct {
	Kind  MarkupKind `json:"kind"`
	Value float64    `json:"value"`
}

var (
	// ErrNegativeMarkup is returned for markups below zero.
	ErrNegativeMarkup = errors.New("markup value must not be negative")
	// ErrUnknownMarkupKind is returned for kinds other than percentage or fixed.
	ErrUnknownMarkupKind = errors.New("unknown markup kind")
	// ErrNonFiniteMarkup is returned for NaN or infinite markup values.
	ErrNonFiniteMarkup = errors.New("markup value must be a finite number")
	// ErrMarkupTooLarge is returned for markups above MaxAmount or
	// MaxMarkupPercentage.
	ErrMarkupTooLarge = errors.New("markup value is too large")
)

// MaxMarkupPercentage is the largest accepted percentage markup.
const MaxMarkupPercentage = 100000

// Validate reports whether the markup can be applied. Negative values are
// rejected rather than clamped.
func (m Markup) Validate() error {
	switch m.Kind {
	case MarkupPercentage, MarkupFixed:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMarkupKind, m.Kind)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return ErrNonFiniteMarkup
	}
	if m.Value < 0 {
		return ErrNegativeMarkup
	}
	limit := MaxAmount
	if m.Kind == MarkupPercentage {
		limit = MaxMarkupPercentage
	}
	if m.Value > limit {
		return fmt.Errorf("%w: %g exceeds %g", ErrMarkupTooLarge, m.Value, limit)
	}
	return nil
}

// ApplyMarkup returns the selling price for base under m. Markup is not
// idempotent: applying it twice compounds. An unrecognized kind leaves the
// base unchanged.
func ApplyMarkup(base float64, m Markup) float64 {
	switch m.Kind {
	case MarkupPercentage:
		return base + base*m.Value/100
	case MarkupFixed:
		return base + m.Value
	default:
		return base
	}
}

// Room is one sellable room of a hotel candidate.
type Room struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Pricing   RawPricing `json:"pricing"`
	ValidFrom *time.Time `json:"validFrom,omitempty"`
	ValidTo   *time.Time `json:"validTo,omitempty"`
}

// Clone returns a copy of r that shares no map or pointer with it.
func (r Room) Clone() Room {
	r.Pricing = r.Pricing.Clone()
	r.ValidFrom = copyTime(r.ValidFrom)
	r.ValidTo = copyTime(r.ValidTo)
	return r
}

// CloneRooms clones every room of rooms. A nil slice stays nil.
func CloneRooms(rooms []Room) []Room {
	if rooms == nil {
		return nil
	}
	out := make([]Room, len(rooms))
	for i, r := range rooms {
		out[i] = r.Clone()
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// UnmarshalJSON accepts the legacy room layout where the price table sits
// at the top level of the room instead of under "pricing".
func (r *Room) UnmarshalJSON(data []byte) error {
	type plain Room
	var decoded struct {
		plain
		CapacityPrices map[Occupancy]PassengerPrices `json:"capacityPrices"`
		SellingPrice   Amount                        `json:"sellingPrice"`
		Currency       string                        `json:"currency"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = Room(decoded.plain)
	if r.Pricing.CapacityPrices == nil && decoded.CapacityPrices != nil {
		r.Pricing.CapacityPrices = decoded.CapacityPrices
	}
	if r.Pricing.SellingPrice.IsZero() && !decoded.SellingPrice.IsZero() {
		r.Pricing.SellingPrice = decoded.SellingPrice
	}
	if r.Pricing.Currency == "" {
		r.Pricing.Currency = decoded.Currency
	}
	return nil
}

// RankRooms returns rooms ordered by base adult price, cheapest first.
// Rooms with equal prices keep their input order.
func RankRooms(rooms []Room) []Room {
	ranked := make([]Room, len(rooms))
	copy(ranked, rooms)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ExtractBaseAdultPrice(ranked[i].Pricing) < ExtractBaseAdultPrice(ranked[j].Pricing)
	})
	return ranked
}

// CheapestRoom returns the room with the lowest base adult price, the first
// one on ties, or nil when rooms is empty. Its validity window gates the
// validity of an offer built around the hotel.
func CheapestRoom(rooms []Room) *Room {
	if len(rooms) == 0 {
		return nil
	}
	cheapest := RankRooms(rooms)[0]
	return &cheapest
}

// RoomQuote is a per-room price preview.
type RoomQuote struct {
	RoomID     string  `json:"room_id"`
	Name       string  `json:"name"`
	Nights     int     `json:"nights"`
	Base       float64 `json:"base"`
	Selling    float64 `json:"selling"`
	Commission float64 `json:"commission"`
}

// PreviewRoomMarkup prices every room for the given stay under m.
// Quotes are for display while configuring a hotel; offer totals are
// computed once for the selected room, never from these quotes.
func PreviewRoomMarkup(rooms []Room, nights int, m Markup) []RoomQuote {
	if nights < 1 {
		nights = 1
	}
	quotes := make([]RoomQuote, 0, len(rooms))
	for _, room := range rooms {
		base := ExtractBaseAdultPrice(room.Pricing) * float64(nights)
		selling := ApplyMarkup(base, m)
		quotes = append(quotes, RoomQuote{
			RoomID:     room.ID,
			Name:       room.Name,
			Nights:     nights,
			Base:       base,
			Selling:    selling,
			Commission: selling - base,
		})
	}
	return quotes
}
