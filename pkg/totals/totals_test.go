package totals

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

func session(pt stepgraph.ProductType, nights int, m pricing.Markup) *journey.Session {
	return &journey.Session{
		ProductType:    pt,
		DurationNights: nights,
		Markup:         m,
		Components:     map[stepgraph.Slot][]journey.Component{},
	}
}

func hotelComponent(perNight float64) journey.Component {
	return journey.Component{
		Slot:  stepgraph.SlotHotel,
		RefID: "h1",
		Pricing: pricing.RawPricing{CapacityPrices: map[pricing.Occupancy]pricing.PassengerPrices{
			pricing.OccupancyDouble: {Adult: pricing.NewAmount(perNight)},
		}},
	}
}

func flightComponent(slot stepgraph.Slot, cost float64) journey.Component {
	return journey.Component{
		Slot:    slot,
		RefID:   string(slot),
		Pricing: pricing.RawPricing{Pricing: &pricing.PassengerFares{Adult: pricing.Fare{Cost: pricing.NewAmount(cost)}}},
	}
}

func flatComponent(slot stepgraph.Slot, ref string, price float64) journey.Component {
	return journey.Component{Slot: slot, RefID: ref, Pricing: pricing.RawPricing{BasePrice: pricing.NewAmount(price)}}
}

func TestProject_Empty(t *testing.T) {
	got := Project(session(stepgraph.Package, 3, pricing.Markup{Kind: pricing.MarkupFixed, Value: 50}))
	assert.True(t, got.Empty())
	assert.Zero(t, got.BaseCost)
	assert.Zero(t, got.SellingPrice)
	assert.Zero(t, got.Commission)
	assert.Empty(t, got.PerComponent)
	assert.Equal(t, DefaultCurrency, got.Currency)
}

func TestProject_HotelScenario(t *testing.T) {
	s := session(stepgraph.Hotel, 3, pricing.Markup{Kind: pricing.MarkupPercentage, Value: 10})
	s.Components[stepgraph.SlotHotel] = []journey.Component{hotelComponent(100)}

	got := Project(s)
	assert.Equal(t, pricing.Money(30000), got.BaseCost)
	assert.Equal(t, pricing.Money(33000), got.SellingPrice)
	assert.Equal(t, pricing.Money(3000), got.Commission)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 3, got.Lines[0].Nights)
	assert.Equal(t, 100.0, got.Lines[0].UnitPrice)
}

func TestProject_FlightScenario(t *testing.T) {
	s := session(stepgraph.Flight, 0, pricing.Markup{Kind: pricing.MarkupFixed, Value: 50})
	s.Components[stepgraph.SlotFlightOutbound] = []journey.Component{flightComponent(stepgraph.SlotFlightOutbound, 200)}
	s.Components[stepgraph.SlotFlightReturn] = []journey.Component{flightComponent(stepgraph.SlotFlightReturn, 180)}

	got := Project(s)
	assert.Equal(t, "380.00", got.BaseCost.String())
	assert.Equal(t, "480.00", got.SellingPrice.String())
	assert.Equal(t, "100.00", got.Commission.String())
	assert.Equal(t, pricing.Money(25000), got.PerComponent[stepgraph.SlotFlightOutbound].Selling)
	assert.Equal(t, pricing.Money(23000), got.PerComponent[stepgraph.SlotFlightReturn].Selling)
}

func TestProject_HotelFlatOutsideAccommodationTypes(t *testing.T) {
	// A hotel slot never appears outside hotel/package graphs, but the
	// per-night rule depends only on the product type.
	s := session(stepgraph.Flight, 5, pricing.Markup{Kind: pricing.MarkupPercentage})
	s.Components[stepgraph.SlotHotel] = []journey.Component{hotelComponent(100)}
	assert.Equal(t, pricing.Money(10000), Project(s).BaseCost)
}

func TestProject_ActivitiesAggregate(t *testing.T) {
	s := session(stepgraph.Package, 2, pricing.Markup{Kind: pricing.MarkupFixed, Value: 10})
	s.Components[stepgraph.SlotHotel] = []journey.Component{hotelComponent(80)}
	s.Components[stepgraph.SlotActivity] = []journey.Component{
		flatComponent(stepgraph.SlotActivity, "a1", 30),
		flatComponent(stepgraph.SlotActivity, "a2", 45),
	}

	got := Project(s)
	acts := got.PerComponent[stepgraph.SlotActivity]
	assert.Equal(t, pricing.Money(7500), acts.Base)
	assert.Equal(t, pricing.Money(9500), acts.Selling, "markup applies per item")
	assert.Len(t, got.Lines, 3)
	assert.Equal(t, pricing.Money(16000+7500), got.BaseCost)

	_, hasTransport := got.PerComponent[stepgraph.SlotTransportArrival]
	assert.False(t, hasTransport)
}

func TestProject_Currency(t *testing.T) {
	s := session(stepgraph.Transport, 0, pricing.Markup{Kind: pricing.MarkupPercentage})
	c := flatComponent(stepgraph.SlotTransportArrival, "t1", 20)
	c.Pricing.Currency = "MXN"
	s.Components[stepgraph.SlotTransportArrival] = []journey.Component{c}
	assert.Equal(t, "MXN", Project(s).Currency)
}

func TestProject_Idempotent(t *testing.T) {
	s := session(stepgraph.Hotel, 2, pricing.Markup{Kind: pricing.MarkupPercentage, Value: 12.5})
	s.Components[stepgraph.SlotHotel] = []journey.Component{hotelComponent(99.99)}
	before := s.Clone()

	first := Project(s)
	second := Project(s)
	assert.Equal(t, first, second)
	assert.Equal(t, before, s.Clone())
}

func TestProject_SellingIsBasePlusCommission(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	slots := stepgraph.Slots()
	kinds := []pricing.MarkupKind{pricing.MarkupPercentage, pricing.MarkupFixed}

	for i := 0; i < 500; i++ {
		pt := stepgraph.ProductTypes()[rng.IntN(5)]
		m := pricing.Markup{Kind: kinds[rng.IntN(2)], Value: rng.Float64() * 40}
		s := session(pt, rng.IntN(15), m)

		for _, slot := range slots {
			if rng.IntN(2) == 0 {
				continue
			}
			n := 1
			if slot.Multi() {
				n = 1 + rng.IntN(4)
			}
			for j := 0; j < n; j++ {
				s.Components[slot] = append(s.Components[slot],
					flatComponent(slot, string(slot)+string(rune('a'+j)), rng.Float64()*2000))
			}
		}

		got := Project(s)
		require.Equal(t, got.SellingPrice, got.BaseCost+got.Commission, "iteration %d", i)

		var sum Amounts
		for _, a := range got.PerComponent {
			sum.add(a)
		}
		require.Equal(t, got.BaseCost, sum.Base)
		require.Equal(t, got.SellingPrice, sum.Selling)
	}
}

func TestProject_SaturatesInsteadOfWrapping(t *testing.T) {
	tests := []struct {
		name        string
		session     func() *journey.Session
		wantBase    pricing.Money
		wantSelling pricing.Money
	}{
		{
			name: "per night price times a very long stay",
			session: func() *journey.Session {
				s := session(stepgraph.Hotel, 10_000_000, pricing.Markup{Kind: pricing.MarkupPercentage, Value: 10})
				s.Components[stepgraph.SlotHotel] = []journey.Component{hotelComponent(1e12)}
				return s
			},
			wantBase:    pricing.MaxMoney,
			wantSelling: pricing.MaxMoney,
		},
		{
			name: "fixed markup beyond the representable range",
			session: func() *journey.Session {
				s := session(stepgraph.Flight, 0, pricing.Markup{Kind: pricing.MarkupFixed, Value: 1e17})
				s.Components[stepgraph.SlotFlightOutbound] = []journey.Component{flightComponent(stepgraph.SlotFlightOutbound, 200)}
				return s
			},
			wantBase:    pricing.Money(20000),
			wantSelling: pricing.MaxMoney,
		},
		{
			name: "activity sum near the limit",
			session: func() *journey.Session {
				s := session(stepgraph.Activity, 0, pricing.Markup{Kind: pricing.MarkupPercentage, Value: 99999})
				for i := 0; i < 10; i++ {
					s.Components[stepgraph.SlotActivity] = append(s.Components[stepgraph.SlotActivity],
						flatComponent(stepgraph.SlotActivity, string(rune('a'+i)), pricing.MaxAmount))
				}
				return s
			},
			wantBase:    pricing.Money(10 * pricing.MaxAmount * 100),
			wantSelling: pricing.MaxMoney,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(tt.session())
			assert.Equal(t, tt.wantBase, got.BaseCost)
			assert.Equal(t, tt.wantSelling, got.SellingPrice)
			assert.GreaterOrEqual(t, got.BaseCost, pricing.Money(0))
			assert.GreaterOrEqual(t, got.SellingPrice, got.BaseCost)
			assert.GreaterOrEqual(t, got.Commission, pricing.Money(0))
			for _, line := range got.Lines {
				assert.GreaterOrEqual(t, line.Selling, pricing.Money(0))
			}
		})
	}
}

func TestProject_OversizedPriceIsNotUsable(t *testing.T) {
	s := session(stepgraph.Hotel, 30, pricing.Markup{Kind: pricing.MarkupPercentage, Value: 10})
	s.Components[stepgraph.SlotHotel] = []journey.Component{hotelComponent(1e16)}

	got := Project(s)
	assert.Zero(t, got.BaseCost)
	assert.Zero(t, got.SellingPrice)
}
