// Package journey holds the mutable state of one offer-composition session
// and the controlled mutations over it.
package journey

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// Destination is where the offer takes place.
type Destination struct {
	City    string `json:"city"`
	Country string `json:"country,omitempty"`
}

// Validity is the sale window of a non-package offer.
type Validity struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Display is the denormalized snapshot of an inventory item shown to the
// user. It is captured at selection time and never refreshed.
type Display struct {
	Name       string         `json:"name"`
	Location   string         `json:"location,omitempty"`
	Stars      int            `json:"stars,omitempty"`
	Photos     []string       `json:"photos,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// UnmarshalJSON tolerates string star ratings and malformed snapshots.
func (d *Display) UnmarshalJSON(data []byte) error {
	type plain Display
	var aux struct {
		plain
		Stars pricing.Amount `json:"stars"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		*d = Display{}
		return nil
	}
	*d = Display(aux.plain)
	if v, ok := aux.Stars.Value(); ok && v > 0 {
		d.Stars = int(v)
	}
	return nil
}

func (d Display) clone() Display {
	d.Photos = slices.Clone(d.Photos)
	d.Attributes = maps.Clone(d.Attributes)
	return d
}

// Candidate is one item returned by an inventory search.
type Candidate struct {
	ID      string             `json:"id"`
	Display Display            `json:"display"`
	Pricing pricing.RawPricing `json:"pricing"`
	// Rooms is set for hotel candidates.
	Rooms []pricing.Room `json:"rooms,omitempty"`
}

func (c Candidate) clone() Candidate {
	c.Display = c.Display.clone()
	c.Pricing = c.Pricing.Clone()
	c.Rooms = pricing.CloneRooms(c.Rooms)
	return c
}

func cloneCandidates(items []Candidate) []Candidate {
	if items == nil {
		return nil
	}
	out := make([]Candidate, len(items))
	for i, c := range items {
		out[i] = c.clone()
	}
	return out
}

// Matches reports whether the candidate passes a free-text filter. The
// filter is matched case-insensitively against id, name, location and
// string attributes; an empty filter matches everything.
func (c Candidate) Matches(filter string) bool {
	needle := strings.ToLower(strings.TrimSpace(filter))
	if needle == "" {
		return true
	}
	fields := []string{c.ID, c.Display.Name, c.Display.Location}
	for _, v := range c.Display.Attributes {
		if s, ok := v.(string); ok {
			fields = append(fields, s)
		}
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Component is an inventory item selected into a slot.
type Component struct {
	Slot    stepgraph.Slot     `json:"slot"`
	RefID   string             `json:"ref_id"`
	Display Display            `json:"display"`
	Pricing pricing.RawPricing `json:"pricing"`

	// Hotel components keep the room that priced them and its window.
	RoomID    string         `json:"room_id,omitempty"`
	Rooms     []pricing.Room `json:"rooms,omitempty"`
	ValidFrom *time.Time     `json:"valid_from,omitempty"`
	ValidTo   *time.Time     `json:"valid_to,omitempty"`

	SelectedAt time.Time `json:"selected_at"`
}

// NewComponent normalizes a candidate into a component for slot. Hotel
// candidates are priced by their cheapest room.
func NewComponent(slot stepgraph.Slot, c Candidate, now time.Time) Component {
	comp := Component{
		Slot:       slot,
		RefID:      c.ID,
		Display:    c.Display.clone(),
		Pricing:    c.Pricing.Clone(),
		Rooms:      pricing.CloneRooms(c.Rooms),
		SelectedAt: now,
	}
	if room := pricing.CheapestRoom(c.Rooms); room != nil {
		cheapest := room.Clone()
		comp.RoomID = cheapest.ID
		comp.Pricing = cheapest.Pricing
		comp.ValidFrom = cheapest.ValidFrom
		comp.ValidTo = cheapest.ValidTo
	}
	return comp
}

func (c Component) clone() Component {
	c.Display = c.Display.clone()
	c.Pricing = c.Pricing.Clone()
	c.Rooms = pricing.CloneRooms(c.Rooms)
	c.ValidFrom = cloneTime(c.ValidFrom)
	c.ValidTo = cloneTime(c.ValidTo)
	return c
}

// SearchStatus is the state of the latest candidate fetch.
type SearchStatus string

const (
	SearchIdle      SearchStatus = "idle"
	SearchRunning   SearchStatus = "running"
	SearchCompleted SearchStatus = "completed"
	SearchFailed    SearchStatus = "failed"
)

// SearchState describes the latest candidate fetch of a session.
type SearchState struct {
	Step      stepgraph.StepID `json:"step,omitempty"`
	Epoch     uint64           `json:"epoch"`
	Status    SearchStatus     `json:"status"`
	Error     string           `json:"error,omitempty"`
	Results   int              `json:"results"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
}

// Mode tells a fresh composition from the edit of a submitted offer.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Session is the aggregate root of one composition attempt.
type Session struct {
	ID             string                           `json:"id"`
	ProductType    stepgraph.ProductType            `json:"product_type"`
	Mode           Mode                             `json:"mode"`
	SourceOfferID  string                           `json:"source_offer_id,omitempty"`
	CurrentStep    stepgraph.StepID                 `json:"current_step"`
	Destination    Destination                      `json:"destination"`
	DurationNights int                              `json:"duration_nights"`
	Validity       Validity                         `json:"validity"`
	Markup         pricing.Markup                   `json:"markup"`
	Components     map[stepgraph.Slot][]Component   `json:"components"`
	CandidatePools map[stepgraph.StepID][]Candidate `json:"candidate_pools"`
	SearchFilters  map[stepgraph.StepID]string      `json:"search_filters"`
	Search         SearchState                      `json:"search"`
	Epoch          uint64                           `json:"epoch"`
	CreatedAt      time.Time                        `json:"created_at"`
	UpdatedAt      time.Time                        `json:"updated_at"`
}

// DurationDays is nights+1 for accommodation-bearing offers and equal to
// nights otherwise.
func (s *Session) DurationDays() int {
	if s.ProductType.AccommodationBearing() {
		return s.DurationNights + 1
	}
	return s.DurationNights
}

// Component returns the single component held in slot.
func (s *Session) Component(slot stepgraph.Slot) (Component, bool) {
	items := s.Components[slot]
	if len(items) == 0 {
		return Component{}, false
	}
	return items[0], true
}

// Activities returns the selected activities.
func (s *Session) Activities() []Component {
	return s.Components[stepgraph.SlotActivity]
}

// Filled returns the slots holding at least one component, in offer order.
func (s *Session) Filled() []stepgraph.Slot {
	var filled []stepgraph.Slot
	for _, slot := range stepgraph.Slots() {
		if len(s.Components[slot]) > 0 {
			filled = append(filled, slot)
		}
	}
	return filled
}

// Selectable returns the pool feeding step filtered by the step's filter.
func (s *Session) Selectable(step stepgraph.StepID) []Candidate {
	meta, ok := stepgraph.Meta(step)
	if !ok || meta.PoolFrom == "" {
		return nil
	}
	filter := s.SearchFilters[step]
	var out []Candidate
	for _, c := range s.CandidatePools[meta.PoolFrom] {
		if c.Matches(filter) {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Destination = s.Destination
	cp.Validity = Validity{From: cloneTime(s.Validity.From), To: cloneTime(s.Validity.To)}
	cp.Search.StartedAt = cloneTime(s.Search.StartedAt)
	cp.Search.EndedAt = cloneTime(s.Search.EndedAt)

	cp.Components = make(map[stepgraph.Slot][]Component, len(s.Components))
	for slot, items := range s.Components {
		out := make([]Component, len(items))
		for i, c := range items {
			out[i] = c.clone()
		}
		cp.Components[slot] = out
	}
	cp.CandidatePools = make(map[stepgraph.StepID][]Candidate, len(s.CandidatePools))
	for step, pool := range s.CandidatePools {
		cp.CandidatePools[step] = cloneCandidates(pool)
	}
	cp.SearchFilters = maps.Clone(s.SearchFilters)
	if cp.SearchFilters == nil {
		cp.SearchFilters = make(map[stepgraph.StepID]string)
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
