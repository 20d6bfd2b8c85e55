package journey

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// DefaultMarkup is the markup of a fresh session.
var DefaultMarkup = pricing.Markup{Kind: pricing.MarkupPercentage, Value: 0}

// Store owns one Session and exposes the only mutations allowed on it.
//
// The store checks membership against the active graph but knows nothing
// about navigation order: clearing state after a backward move is the
// navigator's job. A Store is not safe for concurrent use.
type Store struct {
	registry *stepgraph.Registry
	strict   bool
	log      logger.Logger
	now      func() time.Time

	session *Session
	version uint64
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry sets the step graph registry. Defaults to stepgraph.Default().
func WithRegistry(r *stepgraph.Registry) Option {
	return func(s *Store) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithStrict makes invariant violations panic instead of being logged.
func WithStrict(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

// WithLogger sets the logger used to report invariant violations.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func newStore(opts []Option) *Store {
	s := &Store{
		registry: stepgraph.Default(),
		log:      logger.Global(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStore creates a store holding a fresh session of type pt positioned on
// the graph's initial step.
func NewStore(id string, pt stepgraph.ProductType, opts ...Option) (*Store, error) {
	if !pt.Valid() {
		return nil, &stepgraph.UnknownProductTypeError{Type: pt}
	}
	s := newStore(opts)
	now := s.now()
	s.session = &Session{
		ID:          id,
		ProductType: pt,
		CreatedAt:   now,
	}
	s.resetSession()
	return s, nil
}

// Restore wraps a previously persisted session.
func Restore(sess *Session, opts ...Option) (*Store, error) {
	s := newStore(opts)
	if !sess.ProductType.Valid() {
		return nil, &stepgraph.UnknownProductTypeError{Type: sess.ProductType}
	}
	if !s.registry.Includes(sess.ProductType, sess.CurrentStep) {
		return nil, &InvariantError{
			Op:          "restore",
			ProductType: sess.ProductType,
			Step:        sess.CurrentStep,
			Reason:      "current step not in graph",
		}
	}
	s.session = sess.Clone()
	return s, nil
}

// Registry returns the registry the store validates against.
func (s *Store) Registry() *stepgraph.Registry {
	return s.registry
}

// Strict reports whether violations panic.
func (s *Store) Strict() bool {
	return s.strict
}

func (s *Store) violate(err *InvariantError) error {
	if err.ProductType == "" {
		err.ProductType = s.session.ProductType
	}
	if s.strict {
		panic(err)
	}
	s.log.Error("journey invariant violated",
		logger.KeySessionID, s.session.ID,
		"op", err.Op,
		logger.KeyStep, string(err.Step),
		"slot", string(err.Slot),
		"reason", err.Reason,
	)
	return err
}

// Violation reports an invariant violation detected outside the store,
// honoring the store's strict mode.
func (s *Store) Violation(op string, step stepgraph.StepID, reason string) error {
	return s.violate(&InvariantError{Op: op, Step: step, Reason: reason})
}

func (s *Store) touch() {
	s.session.UpdatedAt = s.now()
	s.version++
}

// Version counts the mutations applied through the store.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) requireStep(op string, step stepgraph.StepID) error {
	if !s.registry.Includes(s.session.ProductType, step) {
		return s.violate(&InvariantError{Op: op, Step: step, Reason: "step not in active graph"})
	}
	return nil
}

func (s *Store) requireSlot(op string, slot stepgraph.Slot) error {
	if !s.registry.HasSlot(s.session.ProductType, slot) {
		return s.violate(&InvariantError{Op: op, Slot: slot, Reason: "slot not defined by active graph"})
	}
	return nil
}

// Read calls fn with the live session. fn must not retain or modify it.
func (s *Store) Read(fn func(*Session)) {
	fn(s.session)
}

// Snapshot returns a deep copy of the session.
func (s *Store) Snapshot() *Session {
	return s.session.Clone()
}

// ID returns the session id.
func (s *Store) ID() string { return s.session.ID }

// ProductType returns the session's product type.
func (s *Store) ProductType() stepgraph.ProductType { return s.session.ProductType }

// CurrentStep returns the current step.
func (s *Store) CurrentStep() stepgraph.StepID { return s.session.CurrentStep }

// Epoch returns the current search epoch.
func (s *Store) Epoch() uint64 { return s.session.Epoch }

// Markup returns the session markup.
func (s *Store) Markup() pricing.Markup { return s.session.Markup }

// Search returns the latest search state.
func (s *Store) Search() SearchState { return s.session.Search }

// SetStep moves the current step. It does not clear any state.
func (s *Store) SetStep(step stepgraph.StepID) error {
	if err := s.requireStep("set_step", step); err != nil {
		return err
	}
	s.session.CurrentStep = step
	s.touch()
	return nil
}

// SetComponent stores c in slot. The activity slot appends, replacing an
// existing activity with the same reference id.
func (s *Store) SetComponent(slot stepgraph.Slot, c Component) error {
	if err := s.requireSlot("set_component", slot); err != nil {
		return err
	}
	c.Slot = slot
	if !slot.Multi() {
		s.session.Components[slot] = []Component{c.clone()}
		s.touch()
		return nil
	}

	items := s.session.Components[slot]
	idx := slices.IndexFunc(items, func(existing Component) bool { return existing.RefID == c.RefID })
	if idx >= 0 {
		items[idx] = c.clone()
	} else {
		items = append(items, c.clone())
	}
	s.session.Components[slot] = items
	s.touch()
	return nil
}

// ClearComponent empties slot.
func (s *Store) ClearComponent(slot stepgraph.Slot) error {
	if err := s.requireSlot("clear_component", slot); err != nil {
		return err
	}
	delete(s.session.Components, slot)
	s.touch()
	return nil
}

// RemoveActivity removes one activity by reference id. It reports whether
// an activity was removed.
func (s *Store) RemoveActivity(refID string) (bool, error) {
	if err := s.requireSlot("remove_activity", stepgraph.SlotActivity); err != nil {
		return false, err
	}
	items := s.session.Components[stepgraph.SlotActivity]
	idx := slices.IndexFunc(items, func(c Component) bool { return c.RefID == refID })
	if idx < 0 {
		return false, nil
	}
	items = slices.Delete(items, idx, idx+1)
	if len(items) == 0 {
		delete(s.session.Components, stepgraph.SlotActivity)
	} else {
		s.session.Components[stepgraph.SlotActivity] = items
	}
	s.touch()
	return true, nil
}

// SetMarkup replaces the markup. Validation is the caller's concern.
func (s *Store) SetMarkup(m pricing.Markup) {
	s.session.Markup = m
	s.touch()
}

// SetDuration sets the stay length in nights.
func (s *Store) SetDuration(nights int) error {
	if nights < 0 {
		return s.violate(&InvariantError{Op: "set_duration", Reason: "negative nights"})
	}
	s.session.DurationNights = nights
	s.touch()
	return nil
}

// SetValidity sets the sale window.
func (s *Store) SetValidity(v Validity) {
	s.session.Validity = Validity{From: cloneTime(v.From), To: cloneTime(v.To)}
	s.touch()
}

// SetDestination sets the destination.
func (s *Store) SetDestination(d Destination) {
	s.session.Destination = Destination{
		City:    strings.TrimSpace(d.City),
		Country: strings.TrimSpace(d.Country),
	}
	s.touch()
}

// SetCandidates stores the latest search result of step.
func (s *Store) SetCandidates(step stepgraph.StepID, items []Candidate) error {
	if err := s.requireStep("set_candidates", step); err != nil {
		return err
	}
	if meta, _ := stepgraph.Meta(step); !meta.FetchesCandidates() {
		return s.violate(&InvariantError{Op: "set_candidates", Step: step, Reason: "step does not fetch candidates"})
	}
	if items == nil {
		items = []Candidate{}
	}
	s.session.CandidatePools[step] = cloneCandidates(items)
	s.touch()
	return nil
}

// SetFilter sets the free-text filter of a step reading a candidate pool.
func (s *Store) SetFilter(step stepgraph.StepID, text string) error {
	if err := s.requireStep("set_filter", step); err != nil {
		return err
	}
	if meta, _ := stepgraph.Meta(step); meta.PoolFrom == "" {
		return s.violate(&InvariantError{Op: "set_filter", Step: step, Reason: "step has no candidates to filter"})
	}
	text = strings.TrimSpace(text)
	if text == "" {
		delete(s.session.SearchFilters, step)
	} else {
		s.session.SearchFilters[step] = text
	}
	s.touch()
	return nil
}

// ClearStepState empties the slot, the candidate pool and the filter
// owned by step.
func (s *Store) ClearStepState(step stepgraph.StepID) error {
	if err := s.requireStep("clear_step_state", step); err != nil {
		return err
	}
	meta, _ := stepgraph.Meta(step)
	if meta.Slot != "" {
		delete(s.session.Components, meta.Slot)
	}
	delete(s.session.CandidatePools, step)
	delete(s.session.SearchFilters, step)
	s.touch()
	return nil
}

// BumpEpoch advances the search epoch and returns the new value.
func (s *Store) BumpEpoch() uint64 {
	s.session.Epoch++
	return s.session.Epoch
}

// SetSearch records the latest search state.
func (s *Store) SetSearch(state SearchState) {
	s.session.Search = state
	s.touch()
}

// Reset returns the session to the pristine state of its product type.
// The id, creation time and epoch survive.
func (s *Store) Reset() {
	s.resetSession()
}

func (s *Store) resetSession() {
	sess := s.session
	sess.Mode = ModeCreate
	sess.SourceOfferID = ""
	sess.CurrentStep = s.registry.Initial(sess.ProductType)
	sess.Destination = Destination{}
	sess.DurationNights = 0
	sess.Validity = Validity{}
	sess.Markup = DefaultMarkup
	sess.Components = make(map[stepgraph.Slot][]Component)
	sess.CandidatePools = make(map[stepgraph.StepID][]Candidate)
	sess.SearchFilters = make(map[stepgraph.StepID]string)
	sess.Search = SearchState{Status: SearchIdle, Epoch: sess.Epoch}
	sess.UpdatedAt = s.now()
	s.version++
}

// Hydrate initializes the session from a persisted offer and positions it
// on summary. Missing numbers default to zero and missing dates to nil;
// components whose slot the graph does not define are dropped.
func (s *Store) Hydrate(doc *OfferDocument) error {
	if doc == nil {
		doc = &OfferDocument{}
	}

	pt, err := stepgraph.ParseProductType(doc.ProductType)
	if err != nil {
		var slots []stepgraph.Slot
		for _, c := range doc.Components {
			slots = append(slots, stepgraph.Slot(c.Slot))
		}
		inferred, ok := stepgraph.InferProductType(slots)
		if !ok {
			return ErrUndeterminedProductType
		}
		pt = inferred
	}

	s.session.ProductType = pt
	s.resetSession()
	sess := s.session
	sess.Mode = ModeEdit
	sess.SourceOfferID = doc.ID
	sess.Destination = Destination{
		City:    strings.TrimSpace(doc.Destination.City),
		Country: strings.TrimSpace(doc.Destination.Country),
	}
	sess.DurationNights = documentNights(pt, doc.Duration)
	sess.Markup = documentMarkup(doc.Markup)
	if pt != stepgraph.Package {
		sess.Validity = Validity{From: doc.Validity.From.Time, To: doc.Validity.To.Time}
	}

	now := s.now()
	for _, dc := range doc.Components {
		slot := stepgraph.Slot(dc.Slot)
		if !s.registry.HasSlot(pt, slot) {
			s.log.Warn("dropping offer component with unsupported slot",
				logger.KeySessionID, sess.ID,
				logger.KeyProductType, string(pt),
				"slot", dc.Slot,
			)
			continue
		}
		if !slot.Multi() && len(sess.Components[slot]) > 0 {
			continue
		}
		comp := Component{
			Slot:       slot,
			RefID:      dc.RefID,
			Display:    dc.Display,
			Pricing:    dc.Pricing,
			RoomID:     dc.RoomID,
			SelectedAt: now,
		}
		if err := s.SetComponent(slot, comp); err != nil {
			return err
		}
	}

	sess.CurrentStep = stepgraph.Summary
	s.touch()
	return nil
}

func documentNights(pt stepgraph.ProductType, d DocumentDuration) int {
	if v, ok := d.Nights.Value(); ok && v >= 0 {
		return int(math.Floor(v))
	}
	days, ok := d.Days.Value()
	if !ok || days < 0 {
		return 0
	}
	n := int(math.Floor(days))
	if pt.AccommodationBearing() && n > 0 {
		n--
	}
	return n
}

func documentMarkup(m DocumentMarkup) pricing.Markup {
	kind := pricing.MarkupKind(strings.ToLower(strings.TrimSpace(m.Kind)))
	if kind != pricing.MarkupFixed {
		kind = pricing.MarkupPercentage
	}
	value, ok := m.Value.Value()
	if !ok || value < 0 {
		value = 0
	}
	return pricing.Markup{Kind: kind, Value: value}
}
