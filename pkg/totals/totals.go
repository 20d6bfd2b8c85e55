// Package totals projects cost, selling price and commission from the
// state of a composition session.
package totals

import (
	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// DefaultCurrency is used when no component states a currency.
const DefaultCurrency = "USD"

// Amounts is a base/selling/commission triple.
type Amounts struct {
	Base       pricing.Money `json:"base"`
	Selling    pricing.Money `json:"selling"`
	Commission pricing.Money `json:"commission"`
}

func (a *Amounts) add(b Amounts) {
	a.Base = a.Base.Add(b.Base)
	a.Selling = a.Selling.Add(b.Selling)
	a.Commission = a.Commission.Add(b.Commission)
}

// Line is the priced contribution of one selected component.
type Line struct {
	Slot  stepgraph.Slot `json:"slot"`
	RefID string         `json:"ref_id"`
	Name  string         `json:"name"`
	// Nights is the multiplier applied to a per-night price, zero for
	// whole-trip prices.
	Nights    int     `json:"nights,omitempty"`
	UnitPrice float64 `json:"unit_price"`
	Amounts
}

// Totals is the priced view of a session.
type Totals struct {
	BaseCost     pricing.Money              `json:"base_cost"`
	SellingPrice pricing.Money              `json:"selling_price"`
	Commission   pricing.Money              `json:"commission"`
	Currency     string                     `json:"currency"`
	Markup       pricing.Markup             `json:"markup"`
	PerComponent map[stepgraph.Slot]Amounts `json:"per_component"`
	Lines        []Line                     `json:"lines"`
}

// Empty reports whether no component contributed to the totals.
func (t Totals) Empty() bool {
	return len(t.Lines) == 0
}

// Project computes the totals of s. It is pure: the session is not
// modified and the same session always yields the same totals.
//
// One markup policy applies to every component independently. Hotel
// prices are per night for hotel and package offers; every other
// component is priced for the whole trip. Amounts are rounded to minor
// units per component, so SellingPrice == BaseCost + Commission exactly.
// Amounts beyond pricing.MaxMoney saturate instead of wrapping, so totals
// never turn negative.
func Project(s *journey.Session) Totals {
	t := Totals{
		Currency:     DefaultCurrency,
		Markup:       s.Markup,
		PerComponent: make(map[stepgraph.Slot]Amounts),
		Lines:        []Line{},
	}
	currencySet := false

	for _, slot := range stepgraph.Slots() {
		items := s.Components[slot]
		if len(items) == 0 {
			continue
		}
		var slotAmounts Amounts
		for _, c := range items {
			line := price(s, c)
			slotAmounts.add(line.Amounts)
			t.Lines = append(t.Lines, line)

			if !currencySet && c.Pricing.Currency != "" {
				t.Currency = c.Pricing.Currency
				currencySet = true
			}
		}
		t.PerComponent[slot] = slotAmounts
		t.BaseCost = t.BaseCost.Add(slotAmounts.Base)
		t.SellingPrice = t.SellingPrice.Add(slotAmounts.Selling)
		t.Commission = t.Commission.Add(slotAmounts.Commission)
	}
	return t
}

func price(s *journey.Session, c journey.Component) Line {
	unit := pricing.ExtractBaseAdultPrice(c.Pricing)
	base := unit
	nights := 0
	if c.Slot == stepgraph.SlotHotel && s.ProductType.AccommodationBearing() {
		nights = s.DurationNights
		base = unit * float64(nights)
	}

	baseMoney := pricing.FromFloat(base)
	sellingMoney := pricing.FromFloat(pricing.ApplyMarkup(base, s.Markup))
	return Line{
		Slot:      c.Slot,
		RefID:     c.RefID,
		Name:      c.Display.Name,
		Nights:    nights,
		UnitPrice: unit,
		Amounts: Amounts{
			Base:       baseMoney,
			Selling:    sellingMoney,
			Commission: sellingMoney.Add(-baseMoney),
		},
	}
}
