// Package stepgraph is the static registry of wizard topologies: which
// steps each product type walks through, in which order, and what each
// step owns.
package stepgraph

import (
	"fmt"
	"strings"
)

// ProductType selects the step graph of a composition session.
type ProductType string

const (
	Hotel     ProductType = "hotel"
	Flight    ProductType = "flight"
	Package   ProductType = "package"
	Transport ProductType = "transport"
	Activity  ProductType = "activity"
)

// ProductTypes lists every known product type in display order.
func ProductTypes() []ProductType {
	return []ProductType{Hotel, Flight, Package, Transport, Activity}
}

// Valid reports whether t is a known product type.
func (t ProductType) Valid() bool {
	switch t {
	case Hotel, Flight, Package, Transport, Activity:
		return true
	}
	return false
}

// AccommodationBearing reports whether offers of this type carry a
// per-night hotel and a duration expressed in nights.
func (t ProductType) AccommodationBearing() bool {
	return t == Hotel || t == Package
}

// ParseProductType parses a case-insensitive product type name.
func ParseProductType(s string) (ProductType, error) {
	t := ProductType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &UnknownProductTypeError{Type: t}
	}
	return t, nil
}

// StepID identifies a wizard step.
type StepID string

const (
	Destination          StepID = "destination"
	HotelSearch          StepID = "hotel-search"
	HotelSelect          StepID = "hotel-select"
	HotelPriceConfig     StepID = "hotel-price-config"
	FlightSearchOutbound StepID = "flight-search-outbound"
	FlightSelectOutbound StepID = "flight-select-outbound"
	FlightSearchReturn   StepID = "flight-search-return"
	FlightSelectReturn   StepID = "flight-select-return"
	TransportArrival     StepID = "transport-arrival"
	TransportDeparture   StepID = "transport-departure"
	ActivitySearch       StepID = "activity-search"
	ActivitySelect       StepID = "activity-select"
	Summary              StepID = "summary"
)

// Slot is a named position of an offer holding selected inventory.
type Slot string

const (
	SlotHotel              Slot = "hotel"
	SlotFlightOutbound     Slot = "flight-outbound"
	SlotFlightReturn       Slot = "flight-return"
	SlotTransportArrival   Slot = "transport-arrival"
	SlotTransportDeparture Slot = "transport-departure"
	SlotActivity           Slot = "activity"
)

// Slots lists every slot in offer order.
func Slots() []Slot {
	return []Slot{
		SlotHotel,
		SlotFlightOutbound,
		SlotFlightReturn,
		SlotTransportArrival,
		SlotTransportDeparture,
		SlotActivity,
	}
}

// Multi reports whether the slot holds a list rather than one component.
func (s Slot) Multi() bool {
	return s == SlotActivity
}

// Kind distinguishes steps waiting on the user from steps waiting on a search.
type Kind string

const (
	// KindInput steps require user input before advancing.
	KindInput Kind = "input"
	// KindSearching steps fetch candidates and advance on completion.
	KindSearching Kind = "searching"
)

// StepMeta describes one step independently of the graphs it appears in.
type StepMeta struct {
	ID   StepID
	Kind Kind
	// Slot is the slot filled at this step, empty if none.
	Slot Slot
	// PoolFrom is the step whose candidate pool feeds this step's selection.
	PoolFrom StepID
	// Prefetch marks input steps that fetch their own pool on entry.
	Prefetch bool
}

// Searching reports whether the step is a searching step.
func (m StepMeta) Searching() bool {
	return m.Kind == KindSearching
}

// FetchesCandidates reports whether entering the step calls the provider.
func (m StepMeta) FetchesCandidates() bool {
	return m.Searching() || m.Prefetch
}

var stepMeta = map[StepID]StepMeta{
	Destination:          {ID: Destination, Kind: KindInput},
	HotelSearch:          {ID: HotelSearch, Kind: KindSearching},
	HotelSelect:          {ID: HotelSelect, Kind: KindInput, Slot: SlotHotel, PoolFrom: HotelSearch},
	HotelPriceConfig:     {ID: HotelPriceConfig, Kind: KindInput},
	FlightSearchOutbound: {ID: FlightSearchOutbound, Kind: KindSearching},
	FlightSelectOutbound: {ID: FlightSelectOutbound, Kind: KindInput, Slot: SlotFlightOutbound, PoolFrom: FlightSearchOutbound},
	FlightSearchReturn:   {ID: FlightSearchReturn, Kind: KindSearching},
	FlightSelectReturn:   {ID: FlightSelectReturn, Kind: KindInput, Slot: SlotFlightReturn, PoolFrom: FlightSearchReturn},
	TransportArrival:     {ID: TransportArrival, Kind: KindInput, Slot: SlotTransportArrival, PoolFrom: TransportArrival, Prefetch: true},
	TransportDeparture:   {ID: TransportDeparture, Kind: KindInput, Slot: SlotTransportDeparture, PoolFrom: TransportDeparture, Prefetch: true},
	ActivitySearch:       {ID: ActivitySearch, Kind: KindSearching},
	ActivitySelect:       {ID: ActivitySelect, Kind: KindInput, Slot: SlotActivity, PoolFrom: ActivitySearch},
	Summary:              {ID: Summary, Kind: KindInput},
}

// Meta returns the metadata of a step.
func Meta(step StepID) (StepMeta, bool) {
	m, ok := stepMeta[step]
	return m, ok
}

// Known reports whether step is a known step identifier.
func Known(step StepID) bool {
	_, ok := stepMeta[step]
	return ok
}

func (s StepID) String() string { return string(s) }

func (t ProductType) String() string { return string(t) }

func (s Slot) String() string { return string(s) }

// formatSteps renders a step list for error messages.
func formatSteps(steps []StepID) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = string(s)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, " → "))
}
