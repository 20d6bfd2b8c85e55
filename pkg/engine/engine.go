// Package engine hosts composition sessions: it creates and restores
// them, routes user actions to their controllers, persists drafts after
// every change and turns finished sessions into stored offers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/offerforge/offerforge/pkg/events"
	"github.com/offerforge/offerforge/pkg/inventory"
	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/navigator"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/storage"
	"github.com/offerforge/offerforge/pkg/storage/memory"
)

// Config holds the configuration for the engine.
type Config struct {
	Name string
	// MaxSessions caps the number of open sessions. Zero is unlimited.
	MaxSessions int
	// Strict panics on state invariant violations instead of logging them.
	Strict bool
	// RecoverDrafts reopens persisted drafts on Start.
	RecoverDrafts bool
}

// State represents the current state of the engine.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MetricsRecorder receives engine metrics.
type MetricsRecorder interface {
	RecordSessionStarted(productType, mode string)
	RecordSessionEnded(productType, outcome string, lifetime time.Duration)
	RecordStepEntered(productType, step string)
	RecordValidationError(step string)
	RecordPersistenceError(entity string)
	RecordSearch(step, result string, duration time.Duration)
	RecordOfferSubmitted(productType, mode, currency string, selling float64)
}

// EventBroadcaster receives the events of every session.
type EventBroadcaster interface {
	Broadcast(events.Event)
}

type nopMetrics struct{}

func (nopMetrics) RecordSessionStarted(string, string)                 {}
func (nopMetrics) RecordSessionEnded(string, string, time.Duration)    {}
func (nopMetrics) RecordStepEntered(string, string)                    {}
func (nopMetrics) RecordValidationError(string)                        {}
func (nopMetrics) RecordPersistenceError(string)                       {}
func (nopMetrics) RecordSearch(string, string, time.Duration)          {}
func (nopMetrics) RecordOfferSubmitted(string, string, string, float64) {}

type nopEvents struct{}

func (nopEvents) Broadcast(events.Event) {}

// liveSession is an open session and its controller.
type liveSession struct {
	ctrl        *navigator.Controller
	productType stepgraph.ProductType
	startedAt   time.Time
}

// Engine is the composition session host.
type Engine struct {
	config   Config
	provider inventory.Provider
	storage  storage.Storage
	registry *stepgraph.Registry
	metrics  MetricsRecorder
	events   EventBroadcaster
	logger   logger.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu        sync.RWMutex
	state     State
	startedAt time.Time
	sessions  map[string]*liveSession
}

// New creates an engine whose sessions search through provider.
func New(config Config, provider inventory.Provider, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("engine: inventory provider is required")
	}
	if config.MaxSessions < 0 {
		return nil, fmt.Errorf("engine: max sessions must be >= 0, got %d", config.MaxSessions)
	}
	e := &Engine{
		config:   config,
		provider: provider,
		registry: stepgraph.Default(),
		metrics:  nopMetrics{},
		events:   nopEvents{},
		logger:   logger.Global(),
		tracer:   engineTracer(),
		now:      func() time.Time { return time.Now().UTC() },
		state:    StateIdle,
		sessions: make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.storage == nil {
		e.storage = memory.NewMemoryStorage()
	}
	return e, nil
}

// Start starts the engine, reopening persisted drafts when configured.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return errors.New("engine is already running")
	}
	e.state = StateRunning
	e.mu.Unlock()

	if e.config.RecoverDrafts {
		if err := e.recover(ctx); err != nil {
			e.mu.Lock()
			e.state = StateError
			e.mu.Unlock()
			return fmt.Errorf("recover drafts: %w", err)
		}
	}

	e.mu.Lock()
	e.startedAt = e.now()
	e.mu.Unlock()
	e.logger.Info("engine started", "name", e.config.Name, "sessions", e.SessionCount())
	return nil
}

// recover reopens every persisted draft. Drafts that no longer fit the
// step graph are skipped; a draft interrupted while searching searches
// again.
func (e *Engine) recover(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, spanRecover)
	defer span.End()

	drafts, _, err := e.storage.ListSessions(ctx, nil)
	if err != nil {
		return err
	}

	for _, draft := range drafts {
		store, err := journey.Restore(draft, e.storeOptions()...)
		if err != nil {
			e.logger.Warn("skipping unrecoverable draft", logger.KeySessionID, draft.ID, "error", err)
			continue
		}
		ls := e.open(store, draft.CreatedAt)
		if draft.Search.Status == journey.SearchRunning {
			if _, err := ls.ctrl.RetrySearch(ctx); err != nil {
				e.logger.Warn("failed to resume draft search", logger.KeySessionID, draft.ID, "error", err)
			}
		}
	}
	e.logger.Info("drafts recovered", "count", e.SessionCount())
	return nil
}

// Stop closes every open session. Drafts stay persisted.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopped
	e.startedAt = time.Time{}
	sessions := e.sessions
	e.sessions = make(map[string]*liveSession)
	e.mu.Unlock()

	for _, ls := range sessions {
		ls.ctrl.Close()
	}

	done := make(chan struct{})
	go func() {
		for _, ls := range sessions {
			ls.ctrl.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("engine stop timed out waiting for searches", "error", ctx.Err())
		return ctx.Err()
	}

	e.logger.Info("engine stopped", "name", e.config.Name, "sessions", len(sessions))
	return nil
}

// State returns the current state of the engine.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsHealthy reports whether the engine accepts work.
func (e *Engine) IsHealthy() bool {
	return e.State() == StateRunning
}

// IsReady reports whether the engine has finished starting.
func (e *Engine) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateRunning && !e.startedAt.IsZero()
}

// Status is a point-in-time summary of the engine.
type Status struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Sessions  int       `json:"sessions"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// GetStatus returns the current engine status.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Name:      e.config.Name,
		State:     e.state.String(),
		Sessions:  len(e.sessions),
		StartedAt: e.startedAt,
	}
}

// SessionCount returns the number of open sessions.
func (e *Engine) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// Registry returns the step graph registry sessions are validated against.
func (e *Engine) Registry() *stepgraph.Registry {
	return e.registry
}

func (e *Engine) storeOptions() []journey.Option {
	return []journey.Option{
		journey.WithRegistry(e.registry),
		journey.WithStrict(e.config.Strict),
		journey.WithLogger(e.logger),
		journey.WithClock(e.now),
	}
}

// open registers a controller for store.
func (e *Engine) open(store *journey.Store, startedAt time.Time) *liveSession {
	sess := store.Snapshot()
	ls := &liveSession{
		productType: sess.ProductType,
		startedAt:   startedAt,
	}
	ls.ctrl = navigator.New(store, e.provider,
		navigator.WithObserver(&sessionObserver{engine: e, productType: sess.ProductType}),
		navigator.WithLogger(e.logger),
		navigator.WithClock(e.now),
		navigator.WithTracer(e.tracer),
	)

	e.mu.Lock()
	e.sessions[sess.ID] = ls
	e.mu.Unlock()
	return ls
}

// SetMaxSessions changes the session cap. Open sessions above a lowered
// cap stay open; only new ones are refused.
func (e *Engine) SetMaxSessions(n int) error {
	if n < 0 {
		return fmt.Errorf("engine: max sessions must be >= 0, got %d", n)
	}
	e.mu.Lock()
	e.config.MaxSessions = n
	e.mu.Unlock()
	return nil
}

// reserve checks that the engine runs and has room for another session.
func (e *Engine) reserve() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateRunning {
		return &EngineNotRunningError{}
	}
	if e.config.MaxSessions > 0 && len(e.sessions) >= e.config.MaxSessions {
		return &SessionLimitError{Limit: e.config.MaxSessions}
	}
	return nil
}

func (e *Engine) session(id string) (*liveSession, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateRunning {
		return nil, &EngineNotRunningError{}
	}
	ls, ok := e.sessions[id]
	if !ok {
		return nil, &SessionNotFoundError{ID: id}
	}
	return ls, nil
}

// take removes a session from the engine.
func (e *Engine) take(id string) (*liveSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	return ls, ok
}

func (e *Engine) putBack(id string, ls *liveSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[id] = ls
}

// Create starts a new session of product type pt.
func (e *Engine) Create(ctx context.Context, pt stepgraph.ProductType) (*journey.Session, error) {
	if err := e.reserve(); err != nil {
		return nil, err
	}
	store, err := journey.NewStore(uuid.NewString(), pt, e.storeOptions()...)
	if err != nil {
		return nil, err
	}
	return e.start(ctx, store)
}

// Hydrate starts an edit session from an offer document.
func (e *Engine) Hydrate(ctx context.Context, doc *journey.OfferDocument) (*journey.Session, error) {
	if err := e.reserve(); err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, spanHydrate)
	defer span.End()

	store, err := journey.NewStore(uuid.NewString(), stepgraph.Hotel, e.storeOptions()...)
	if err != nil {
		return nil, err
	}
	if err := store.Hydrate(doc); err != nil {
		return nil, err
	}
	return e.start(ctx, store)
}

// Edit starts an edit session from a stored offer.
func (e *Engine) Edit(ctx context.Context, offerID string) (*journey.Session, error) {
	rec, err := e.storage.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	doc, err := rec.Payload.Document(rec.ID)
	if err != nil {
		return nil, err
	}
	return e.Hydrate(ctx, doc)
}

func (e *Engine) start(ctx context.Context, store *journey.Store) (*journey.Session, error) {
	sess := store.Snapshot()
	if err := e.storage.SaveSession(ctx, sess); err != nil {
		e.metrics.RecordPersistenceError("session")
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	e.open(store, sess.CreatedAt)

	e.metrics.RecordSessionStarted(string(sess.ProductType), string(sess.Mode))
	e.metrics.RecordStepEntered(string(sess.ProductType), string(sess.CurrentStep))
	e.events.Broadcast(events.StepChanged(sess.ID, "", string(sess.CurrentStep), sess.Epoch, e.now()))

	e.logger.Info("session started",
		logger.KeySessionID, sess.ID,
		logger.KeyProductType, string(sess.ProductType),
		"mode", string(sess.Mode),
	)
	return sess, nil
}

// Get returns a snapshot of an open session.
func (e *Engine) Get(_ context.Context, id string) (*journey.Session, error) {
	ls, err := e.session(id)
	if err != nil {
		return nil, err
	}
	return ls.ctrl.Snapshot(), nil
}

// List lists persisted drafts.
func (e *Engine) List(ctx context.Context, filter *storage.Filter) ([]*journey.Session, int, error) {
	if e.State() != StateRunning {
		return nil, 0, &EngineNotRunningError{}
	}
	return e.storage.ListSessions(ctx, filter)
}

// Cancel discards an open session and its draft.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	if _, err := e.session(id); err != nil {
		return err
	}
	ls, ok := e.take(id)
	if !ok {
		return &SessionNotFoundError{ID: id}
	}
	ls.ctrl.Close()
	e.finish(ctx, id, ls, "cancelled")
	return nil
}

// finish drops the draft of a closed session and records its end.
func (e *Engine) finish(ctx context.Context, id string, ls *liveSession, outcome string) {
	var nf *storage.NotFoundError
	if err := e.storage.DeleteSession(ctx, id); err != nil && !errors.As(err, &nf) {
		e.metrics.RecordPersistenceError("session")
		e.logger.Error("failed to delete draft", logger.KeySessionID, id, "error", err)
	}
	e.metrics.RecordSessionEnded(string(ls.productType), outcome, e.now().Sub(ls.startedAt))
	e.events.Broadcast(events.SessionClosed(id, outcome, e.now()))
	e.logger.Info("session closed", logger.KeySessionID, id, "outcome", outcome)
}
