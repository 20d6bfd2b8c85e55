// Package navigator drives a composition session through its step graph.
//
// A Controller is the only component that moves the current step in
// response to user intent and the only one that calls the candidate
// provider. Searches run asynchronously; every search, retreat,
// destination change and reset bumps the session epoch, and results
// tagged with an older epoch are dropped.
package navigator

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/offerforge/offerforge/pkg/inventory"
	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/offer"
	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/totals"
)

const tracerName = "offerforge.navigator"

// Transition describes the outcome of a navigation action.
type Transition struct {
	From stepgraph.StepID `json:"from"`
	To   stepgraph.StepID `json:"to"`
	// Searching is set when the new step started a candidate fetch.
	Searching bool `json:"searching"`
	// Terminal is set when advancing from summary, which does nothing.
	Terminal bool   `json:"terminal"`
	Epoch    uint64 `json:"epoch"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers the event observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTracer overrides the tracer used for search spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// Controller serializes all actions on one session.
type Controller struct {
	mu       sync.Mutex
	store    *journey.Store
	registry *stepgraph.Registry
	provider inventory.Provider
	observer Observer
	log      logger.Logger
	now      func() time.Time
	tracer   trace.Tracer

	cancelFetch context.CancelFunc
	inflight    sync.WaitGroup
	closed      bool
	pending     []Event
	lastTotals  totals.Totals
	version     uint64
}

// New creates a controller over store. The provider serves every
// searching and prefetching step.
func New(store *journey.Store, provider inventory.Provider, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		registry: store.Registry(),
		provider: provider,
		observer: nopObserver{},
		log:      logger.Global(),
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.ForSession(c.log, store.ID())
	store.Read(func(s *journey.Session) {
		c.lastTotals = totals.Project(s)
	})
	c.version = store.Version()
	return c
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.store.ID()
}

// Snapshot returns a deep copy of the session.
func (c *Controller) Snapshot() *journey.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

// Totals projects the current totals.
func (c *Controller) Totals() totals.Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalsLocked()
}

func (c *Controller) totalsLocked() totals.Totals {
	var t totals.Totals
	c.store.Read(func(s *journey.Session) { t = totals.Project(s) })
	return t
}

// RoomQuotes previews the markup on every room of the selected hotel.
func (c *Controller) RoomQuotes() []pricing.RoomQuote {
	c.mu.Lock()
	defer c.mu.Unlock()

	var quotes []pricing.RoomQuote
	c.store.Read(func(s *journey.Session) {
		hotel, ok := s.Component(stepgraph.SlotHotel)
		if !ok {
			return
		}
		quotes = pricing.PreviewRoomMarkup(hotel.Rooms, s.DurationNights, s.Markup)
	})
	return quotes
}

func (c *Controller) checkOpen() error {
	if c.closed {
		return &ClosedError{SessionID: c.store.ID()}
	}
	return nil
}

func (c *Controller) invalid(field, reason string) error {
	return &ValidationError{Step: c.store.CurrentStep(), Field: field, Reason: reason}
}

// Advance validates the current step and moves to the next one. Entering
// a searching step starts its search; the session advances again by itself
// once the search resolves. Advancing from summary is a terminal no-op.
func (c *Controller) Advance(ctx context.Context) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return Transition{}, err
	}

	cur := c.store.CurrentStep()
	if cur == stepgraph.Summary {
		return Transition{From: cur, To: cur, Terminal: true, Epoch: c.store.Epoch()}, nil
	}
	if err := c.checkAdvanceLocked(cur); err != nil {
		return Transition{}, err
	}

	next, ok := c.registry.Next(c.store.ProductType(), cur)
	if !ok {
		return Transition{}, c.store.Violation("advance", cur, "no next step in active graph")
	}
	return c.enterLocked(ctx, next)
}

func (c *Controller) checkAdvanceLocked(cur stepgraph.StepID) error {
	meta, ok := stepgraph.Meta(cur)
	if !ok {
		return c.store.Violation("advance", cur, "unknown step")
	}

	var sess *journey.Session
	c.store.Read(func(s *journey.Session) { sess = s })

	if meta.Searching() {
		switch sess.Search.Status {
		case journey.SearchRunning:
			return c.invalid("search", "is still running")
		case journey.SearchFailed:
			return c.invalid("search", "failed; retry or go back")
		}
		return nil
	}

	switch {
	case cur == stepgraph.Destination:
		if strings.TrimSpace(sess.Destination.City) == "" {
			return c.invalid("destination.city", "is required")
		}
	case cur == stepgraph.HotelPriceConfig:
		if err := sess.Markup.Validate(); err != nil {
			return c.invalid("markup", err.Error())
		}
		if sess.ProductType.AccommodationBearing() && sess.DurationNights < 1 {
			return c.invalid("duration_nights", "must be at least 1")
		}
	case meta.Slot != "":
		if len(sess.Components[meta.Slot]) > 0 {
			return nil
		}
		// An empty list is a valid choice for an optional list slot.
		if meta.Slot.Multi() && c.registry.Optional(sess.ProductType, cur) {
			return nil
		}
		return c.invalid(string(meta.Slot), "requires a selection")
	}
	return nil
}

// Skip leaves the current optional step's slot empty and advances without
// checking its precondition.
func (c *Controller) Skip(ctx context.Context) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return Transition{}, err
	}

	pt, cur := c.store.ProductType(), c.store.CurrentStep()
	if !c.registry.Optional(pt, cur) {
		return Transition{}, c.invalid("", "step is not optional")
	}
	if meta, _ := stepgraph.Meta(cur); meta.Slot != "" {
		if err := c.store.ClearComponent(meta.Slot); err != nil {
			return Transition{}, err
		}
	}
	next, ok := c.registry.Next(pt, cur)
	if !ok {
		return Transition{}, c.store.Violation("skip", cur, "no next step in active graph")
	}
	return c.enterLocked(ctx, next)
}

// Retreat moves back to the previous input step and clears every slot,
// pool and filter strictly after it. Searching steps are passed over.
func (c *Controller) Retreat(_ context.Context) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return Transition{}, err
	}

	pt, cur := c.store.ProductType(), c.store.CurrentStep()
	if cur == stepgraph.Destination {
		return Transition{}, c.invalid("", "already at the first step")
	}
	prev, ok := c.registry.PreviousInput(pt, cur)
	if !ok {
		return Transition{}, c.store.Violation("retreat", cur, "no previous step in active graph")
	}

	c.invalidateLocked()
	for _, step := range c.registry.StepsAfter(pt, prev) {
		if err := c.store.ClearStepState(step); err != nil {
			return Transition{}, err
		}
	}
	if err := c.store.SetStep(prev); err != nil {
		return Transition{}, err
	}
	c.emit(Event{Type: EventStepChanged, From: cur, Step: prev, Epoch: c.store.Epoch()})
	c.log.Debug("retreated", logger.KeyStep, string(prev), "from", string(cur), logger.KeyEpoch, c.store.Epoch())

	return Transition{From: cur, To: prev, Epoch: c.store.Epoch()}, nil
}

// enterLocked moves to step and starts its fetch when it has one.
func (c *Controller) enterLocked(ctx context.Context, step stepgraph.StepID) (Transition, error) {
	from := c.store.CurrentStep()
	if c.store.Search().Status == journey.SearchRunning {
		c.invalidateLocked()
	}
	if err := c.store.SetStep(step); err != nil {
		return Transition{}, err
	}
	c.emit(Event{Type: EventStepChanged, From: from, Step: step, Epoch: c.store.Epoch()})

	tr := Transition{From: from, To: step}
	if meta, _ := stepgraph.Meta(step); meta.FetchesCandidates() {
		c.startFetchLocked(ctx, step)
		tr.Searching = true
	}
	tr.Epoch = c.store.Epoch()
	return tr, nil
}

// RetrySearch restarts the fetch of the current step, typically after a
// failed search.
func (c *Controller) RetrySearch(ctx context.Context) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return Transition{}, err
	}
	cur := c.store.CurrentStep()
	if meta, _ := stepgraph.Meta(cur); !meta.FetchesCandidates() {
		return Transition{}, c.invalid("", "step has no search")
	}
	c.startFetchLocked(ctx, cur)
	return Transition{From: cur, To: cur, Searching: true, Epoch: c.store.Epoch()}, nil
}

// invalidateLocked abandons the outstanding search, if any. Its results
// will carry a stale epoch and be discarded.
func (c *Controller) invalidateLocked() {
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	epoch := c.store.BumpEpoch()
	if c.store.Search().Status == journey.SearchRunning {
		c.store.SetSearch(journey.SearchState{Status: journey.SearchIdle, Epoch: epoch})
	}
}

func (c *Controller) criteriaLocked() inventory.Criteria {
	var cr inventory.Criteria
	c.store.Read(func(s *journey.Session) {
		cr = inventory.Criteria{
			ProductType: s.ProductType,
			Destination: s.Destination,
			Nights:      s.DurationNights,
		}
		for _, slot := range s.Filled() {
			if slot.Multi() {
				continue
			}
			if cr.Context == nil {
				cr.Context = make(map[string]string)
			}
			comp, _ := s.Component(slot)
			cr.Context[string(slot)] = comp.RefID
		}
	})
	return cr
}

// startFetchLocked tags a new search with a fresh epoch and runs it in the
// background. The search outlives ctx's deadline but not Close.
func (c *Controller) startFetchLocked(ctx context.Context, step stepgraph.StepID) {
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	epoch := c.store.BumpEpoch()
	started := c.now()
	c.store.SetSearch(journey.SearchState{
		Step:      step,
		Epoch:     epoch,
		Status:    journey.SearchRunning,
		StartedAt: &started,
	})
	c.emit(Event{Type: EventSearchStarted, Step: step, Epoch: epoch})
	c.log.Debug("search started", logger.KeyStep, string(step), logger.KeyEpoch, epoch)

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelFetch = cancel
	criteria := c.criteriaLocked()
	sessionID := c.store.ID()

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer cancel()

		spanCtx, span := c.tracer.Start(fetchCtx, "journey.search", trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("journey.step", string(step)),
			attribute.Int64("journey.epoch", int64(epoch)),
		))
		items, err := c.provider.Search(spanCtx, step, criteria)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("journey.results", len(items)))
		}
		span.End()

		c.complete(fetchCtx, step, epoch, started, items, err)
	}()
}

// complete applies a search result if it is still current. A successful
// result on a searching step advances the session to the next step.
func (c *Controller) complete(ctx context.Context, step stepgraph.StepID, epoch uint64, started time.Time, items []journey.Candidate, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	ended := c.now()
	elapsed := ended.Sub(started)

	if c.closed || epoch != c.store.Epoch() || c.store.CurrentStep() != step {
		c.log.Debug("stale search result discarded",
			logger.KeyStep, string(step), logger.KeyEpoch, epoch, "current_epoch", c.store.Epoch())
		c.emit(Event{Type: EventSearchDiscarded, Step: step, Epoch: epoch, Elapsed: elapsed})
		return
	}
	c.cancelFetch = nil

	state := journey.SearchState{
		Step:      step,
		Epoch:     epoch,
		StartedAt: &started,
		EndedAt:   &ended,
	}
	if err != nil {
		serr := &SearchError{Step: step, Epoch: epoch, Err: err}
		state.Status = journey.SearchFailed
		state.Error = err.Error()
		c.store.SetSearch(state)
		c.emit(Event{Type: EventSearchFailed, Step: step, Epoch: epoch, Err: serr, Elapsed: elapsed})
		c.log.Warn("search failed", logger.KeyStep, string(step), logger.KeyEpoch, epoch, "error", err)
		return
	}

	if serr := c.store.SetCandidates(step, items); serr != nil {
		return
	}
	state.Status = journey.SearchCompleted
	state.Results = len(items)
	c.store.SetSearch(state)
	c.emit(Event{Type: EventSearchCompleted, Step: step, Epoch: epoch, Results: len(items), Elapsed: elapsed})
	c.log.Debug("search completed", logger.KeyStep, string(step), logger.KeyEpoch, epoch, "results", len(items))

	if meta, _ := stepgraph.Meta(step); !meta.Searching() {
		return
	}
	next, ok := c.registry.Next(c.store.ProductType(), step)
	if !ok {
		_ = c.store.Violation("search", step, "searching step has no successor")
		return
	}
	if _, err := c.enterLocked(ctx, next); err != nil {
		c.log.Error("auto advance failed", logger.KeyStep, string(step), "error", err)
	}
}

// Select stores the candidate with candidateID from the pool feeding slot.
// The candidate must pass the step's current filter, and the slot's step
// must have been reached. Select never advances.
func (c *Controller) Select(slot stepgraph.Slot, candidateID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return err
	}

	owner, err := c.reachableOwnerLocked(slot)
	if err != nil {
		return err
	}

	var (
		cand  journey.Candidate
		found bool
	)
	c.store.Read(func(s *journey.Session) {
		for _, item := range s.Selectable(owner) {
			if item.ID == candidateID {
				cand, found = item, true
				return
			}
		}
	})
	if !found {
		return c.invalid("candidate_id", "is not among the selectable candidates")
	}

	return c.store.SetComponent(slot, journey.NewComponent(slot, cand, c.now()))
}

// Deselect empties slot. For the activity slot a non-empty refID removes
// only that activity.
func (c *Controller) Deselect(slot stepgraph.Slot, refID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if _, err := c.reachableOwnerLocked(slot); err != nil {
		return err
	}
	if slot.Multi() && refID != "" {
		removed, err := c.store.RemoveActivity(refID)
		if err != nil {
			return err
		}
		if !removed {
			return c.invalid("ref_id", "is not selected")
		}
		return nil
	}
	return c.store.ClearComponent(slot)
}

func (c *Controller) reachableOwnerLocked(slot stepgraph.Slot) (stepgraph.StepID, error) {
	pt := c.store.ProductType()
	owner, ok := c.registry.Owner(pt, slot)
	if !ok {
		return "", c.invalid("slot", "is not part of a "+string(pt)+" offer")
	}
	ownerPos, _ := c.registry.Position(pt, owner)
	curPos, ok := c.registry.Position(pt, c.store.CurrentStep())
	if !ok {
		return "", c.store.Violation("select", c.store.CurrentStep(), "current step not in active graph")
	}
	if ownerPos > curPos {
		return "", c.invalid("slot", "has not been reached yet")
	}
	return owner, nil
}

// SetDestination sets the destination. It is only allowed on the
// destination step and invalidates any outstanding search.
func (c *Controller) SetDestination(d journey.Destination) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.store.CurrentStep() != stepgraph.Destination {
		return c.invalid("destination", "can only change on the destination step")
	}
	if strings.TrimSpace(d.City) == "" {
		return c.invalid("destination.city", "is required")
	}
	c.invalidateLocked()
	c.store.SetDestination(d)
	return nil
}

// SetMarkup replaces the markup after validating it.
func (c *Controller) SetMarkup(m pricing.Markup) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return c.invalid("markup", err.Error())
	}
	c.store.SetMarkup(m)
	return nil
}

// SetDuration sets the stay length in nights.
func (c *Controller) SetDuration(nights int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if nights < 0 {
		return c.invalid("duration_nights", "must not be negative")
	}
	return c.store.SetDuration(nights)
}

// SetValidity sets the sale window of a non-package offer.
func (c *Controller) SetValidity(v journey.Validity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.store.ProductType() == stepgraph.Package {
		return c.invalid("validity", "does not apply to package offers")
	}
	if v.From != nil && v.To != nil && v.From.After(*v.To) {
		return c.invalid("validity", "must start before it ends")
	}
	c.store.SetValidity(v)
	return nil
}

// SetFilter sets the free-text filter of a step reading a candidate pool.
func (c *Controller) SetFilter(step stepgraph.StepID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return err
	}
	meta, ok := stepgraph.Meta(step)
	if !ok || meta.PoolFrom == "" || !c.registry.Includes(c.store.ProductType(), step) {
		return c.invalid("step", "has no candidates to filter")
	}
	return c.store.SetFilter(step, text)
}

// Submit checks that the session is complete and returns its offer
// payload. The session itself is left as is.
func (c *Controller) Submit() (offer.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return offer.Payload{}, err
	}

	var (
		payload offer.Payload
		err     error
	)
	c.store.Read(func(s *journey.Session) {
		switch {
		case s.CurrentStep != stepgraph.Summary:
			err = c.invalid("", "offer can only be submitted from summary")
		case len(s.Filled()) == 0:
			err = c.invalid("components", "at least one component is required")
		case strings.TrimSpace(s.Destination.City) == "":
			err = c.invalid("destination.city", "is required")
		case s.Markup.Validate() != nil:
			err = c.invalid("markup", s.Markup.Validate().Error())
		case s.ProductType.AccommodationBearing() && s.DurationNights < 1:
			err = c.invalid("duration_nights", "must be at least 1")
		case s.Validity.From != nil && s.Validity.To != nil && s.Validity.From.After(*s.Validity.To):
			err = c.invalid("validity", "must start before it ends")
		default:
			payload = offer.Build(s, totals.Project(s))
		}
	})
	return payload, err
}

// Reset discards all progress and returns to the initial step.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.flushLocked()

	if err := c.checkOpen(); err != nil {
		return err
	}
	from := c.store.CurrentStep()
	c.invalidateLocked()
	c.store.Reset()
	c.emit(Event{Type: EventStepChanged, From: from, Step: c.store.CurrentStep(), Epoch: c.store.Epoch()})
	return nil
}

// Close cancels any outstanding search and rejects further actions.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.invalidateLocked()
	c.closed = true
	c.pending = nil
}

// Wait blocks until no search goroutine is running.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) emit(e Event) {
	c.pending = append(c.pending, e)
}

// flushLocked delivers the events of one action, followed by a totals event
// when totals moved and a session event when the session changed.
func (c *Controller) flushLocked() {
	if c.closed {
		c.pending = nil
		return
	}
	before := c.version
	c.version = c.store.Version()
	if len(c.pending) == 0 && before == c.version {
		return
	}

	t := c.totalsLocked()
	if !sameTotals(t, c.lastTotals) {
		c.lastTotals = t
		c.emit(Event{Type: EventTotalsChanged, Totals: &t})
	}
	c.emit(Event{Type: EventSessionChanged, Session: c.store.Snapshot()})

	events := c.pending
	c.pending = nil
	now := c.now()
	for _, e := range events {
		e.SessionID = c.store.ID()
		e.At = now
		if e.Epoch == 0 {
			e.Epoch = c.store.Epoch()
		}
		c.observer.OnJourneyEvent(e)
	}
}

func sameTotals(a, b totals.Totals) bool {
	if a.BaseCost != b.BaseCost || a.SellingPrice != b.SellingPrice || a.Currency != b.Currency {
		return false
	}
	if a.Markup != b.Markup || len(a.Lines) != len(b.Lines) {
		return false
	}
	for i := range a.Lines {
		if a.Lines[i] != b.Lines[i] {
			return false
		}
	}
	return true
}
