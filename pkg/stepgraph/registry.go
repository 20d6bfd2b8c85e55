package stepgraph

import (
	"slices"
	"sync"
)

// Definition declares the graph of one product type.
type Definition struct {
	Type     ProductType
	Steps    []StepID
	Optional []StepID
}

type graph struct {
	steps    []StepID
	index    map[StepID]int
	optional map[StepID]bool
}

// Registry answers topology questions for every product type. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	graphs map[ProductType]*graph
}

// NewRegistry validates defs and builds a registry. Every known product
// type must be defined exactly once.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{graphs: make(map[ProductType]*graph, len(defs))}

	for _, def := range defs {
		if !def.Type.Valid() {
			return nil, &UnknownProductTypeError{Type: def.Type}
		}
		g, err := buildGraph(def)
		if err != nil {
			return nil, err
		}
		r.graphs[def.Type] = g
	}

	for _, t := range ProductTypes() {
		if _, ok := r.graphs[t]; !ok {
			return nil, &MissingGraphError{Type: t}
		}
	}
	return r, nil
}

func buildGraph(def Definition) (*graph, error) {
	if len(def.Steps) == 0 {
		return nil, &EmptyGraphError{Type: def.Type}
	}
	if def.Steps[0] != Destination || def.Steps[len(def.Steps)-1] != Summary {
		return nil, &BoundaryError{Type: def.Type, Steps: slices.Clone(def.Steps)}
	}

	g := &graph{
		steps:    slices.Clone(def.Steps),
		index:    make(map[StepID]int, len(def.Steps)),
		optional: make(map[StepID]bool, len(def.Optional)),
	}
	for i, step := range g.steps {
		if !Known(step) {
			return nil, &UnknownStepError{Type: def.Type, Step: step}
		}
		if _, dup := g.index[step]; dup {
			return nil, &DuplicateStepError{Type: def.Type, Step: step}
		}
		g.index[step] = i
	}

	for i, step := range g.steps {
		meta := stepMeta[step]
		if meta.PoolFrom == "" || meta.PoolFrom == step {
			continue
		}
		src, ok := g.index[meta.PoolFrom]
		if !ok || src >= i {
			return nil, &PoolSourceError{Type: def.Type, Step: step, Source: meta.PoolFrom}
		}
	}

	for _, step := range def.Optional {
		switch {
		case !g.has(step):
			return nil, &InvalidOptionalError{Type: def.Type, Step: step, Reason: "not in graph"}
		case step == Destination || step == Summary:
			return nil, &InvalidOptionalError{Type: def.Type, Step: step, Reason: "boundary step"}
		case stepMeta[step].Searching():
			return nil, &InvalidOptionalError{Type: def.Type, Step: step, Reason: "searching step"}
		}
		g.optional[step] = true
	}
	return g, nil
}

func (g *graph) has(step StepID) bool {
	_, ok := g.index[step]
	return ok
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultDefinitions returns the built-in graphs.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Type:  Hotel,
			Steps: []StepID{Destination, HotelSearch, HotelSelect, HotelPriceConfig, Summary},
		},
		{
			Type: Flight,
			Steps: []StepID{
				Destination,
				FlightSearchOutbound, FlightSelectOutbound,
				FlightSearchReturn, FlightSelectReturn,
				Summary,
			},
			Optional: []StepID{FlightSelectOutbound, FlightSelectReturn},
		},
		{
			Type:     Transport,
			Steps:    []StepID{Destination, TransportArrival, TransportDeparture, Summary},
			Optional: []StepID{TransportDeparture},
		},
		{
			Type:  Activity,
			Steps: []StepID{Destination, ActivitySearch, ActivitySelect, Summary},
		},
		{
			Type: Package,
			Steps: []StepID{
				Destination,
				HotelSearch, HotelSelect, HotelPriceConfig,
				TransportArrival, TransportDeparture,
				ActivitySearch, ActivitySelect,
				Summary,
			},
			Optional: []StepID{TransportArrival, TransportDeparture, ActivitySelect},
		},
	}
}

// Default returns the registry built from DefaultDefinitions.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewRegistry(DefaultDefinitions())
		if err != nil {
			panic("stepgraph: invalid built-in graphs: " + err.Error())
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

func (r *Registry) graph(t ProductType) *graph {
	return r.graphs[t]
}

// StepsFor returns a copy of the ordered steps of t, or nil for an unknown type.
func (r *Registry) StepsFor(t ProductType) []StepID {
	g := r.graph(t)
	if g == nil {
		return nil
	}
	return slices.Clone(g.steps)
}

// Includes reports whether step belongs to the graph of t.
func (r *Registry) Includes(t ProductType, step StepID) bool {
	g := r.graph(t)
	return g != nil && g.has(step)
}

// Initial returns the first step of t.
func (r *Registry) Initial(t ProductType) StepID {
	g := r.graph(t)
	if g == nil {
		return Destination
	}
	return g.steps[0]
}

// Position returns the index of step within the graph of t.
func (r *Registry) Position(t ProductType, step StepID) (int, bool) {
	g := r.graph(t)
	if g == nil {
		return 0, false
	}
	i, ok := g.index[step]
	return i, ok
}

// Next returns the step after step. It returns false at summary and for
// steps outside the graph.
func (r *Registry) Next(t ProductType, step StepID) (StepID, bool) {
	g := r.graph(t)
	if g == nil {
		return "", false
	}
	i, ok := g.index[step]
	if !ok || i+1 >= len(g.steps) {
		return "", false
	}
	return g.steps[i+1], true
}

// Previous returns the step before step. It returns false at destination
// and for steps outside the graph.
func (r *Registry) Previous(t ProductType, step StepID) (StepID, bool) {
	g := r.graph(t)
	if g == nil {
		return "", false
	}
	i, ok := g.index[step]
	if !ok || i == 0 {
		return "", false
	}
	return g.steps[i-1], true
}

// PreviousInput returns the closest input step before step, passing over
// searching steps.
func (r *Registry) PreviousInput(t ProductType, step StepID) (StepID, bool) {
	prev, ok := r.Previous(t, step)
	for ok && stepMeta[prev].Searching() {
		prev, ok = r.Previous(t, prev)
	}
	return prev, ok
}

// Optional reports whether step may be skipped in the graph of t.
func (r *Registry) Optional(t ProductType, step StepID) bool {
	g := r.graph(t)
	return g != nil && g.optional[step]
}

// StepsAfter returns the steps strictly after step in the graph of t.
func (r *Registry) StepsAfter(t ProductType, step StepID) []StepID {
	g := r.graph(t)
	if g == nil {
		return nil
	}
	i, ok := g.index[step]
	if !ok {
		return nil
	}
	return slices.Clone(g.steps[i+1:])
}

// SlotsFor returns the slots filled by the graph of t, in step order.
func (r *Registry) SlotsFor(t ProductType) []Slot {
	g := r.graph(t)
	if g == nil {
		return nil
	}
	var slots []Slot
	for _, step := range g.steps {
		if s := stepMeta[step].Slot; s != "" {
			slots = append(slots, s)
		}
	}
	return slots
}

// Owner returns the step filling slot in the graph of t.
func (r *Registry) Owner(t ProductType, slot Slot) (StepID, bool) {
	g := r.graph(t)
	if g == nil {
		return "", false
	}
	for _, step := range g.steps {
		if stepMeta[step].Slot == slot {
			return step, true
		}
	}
	return "", false
}

// HasSlot reports whether the graph of t fills slot.
func (r *Registry) HasSlot(t ProductType, slot Slot) bool {
	_, ok := r.Owner(t, slot)
	return ok
}

// InferProductType guesses the product type of an offer from the slots it
// fills. Hotel with any other leg is a package; otherwise the single kind
// of leg present decides.
func InferProductType(filled []Slot) (ProductType, bool) {
	has := make(map[Slot]bool, len(filled))
	for _, s := range filled {
		has[s] = true
	}
	flights := has[SlotFlightOutbound] || has[SlotFlightReturn]
	transports := has[SlotTransportArrival] || has[SlotTransportDeparture]
	activities := has[SlotActivity]

	switch {
	case has[SlotHotel] && (transports || activities):
		return Package, true
	case has[SlotHotel]:
		return Hotel, true
	case flights:
		return Flight, true
	case transports:
		return Transport, true
	case activities:
		return Activity, true
	}
	return "", false
}
