package navigator

import (
	"time"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/totals"
)

// EventType identifies a controller event.
type EventType int

const (
	EventStepChanged EventType = iota
	EventSearchStarted
	EventSearchCompleted
	EventSearchFailed
	EventSearchDiscarded
	EventTotalsChanged
	EventSessionChanged
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventStepChanged:
		return "journey.step_changed"
	case EventSearchStarted:
		return "journey.search_started"
	case EventSearchCompleted:
		return "journey.search_completed"
	case EventSearchFailed:
		return "journey.search_failed"
	case EventSearchDiscarded:
		return "journey.search_discarded"
	case EventTotalsChanged:
		return "journey.totals_changed"
	case EventSessionChanged:
		return "journey.session_changed"
	default:
		return "journey.unknown"
	}
}

// Event is a state change of one session.
type Event struct {
	Type      EventType
	SessionID string
	From      stepgraph.StepID
	Step      stepgraph.StepID
	Epoch     uint64
	Results   int
	Err       error
	Elapsed   time.Duration
	Totals    *totals.Totals
	// Session is set on EventSessionChanged only.
	Session *journey.Session
	At      time.Time
}

// Observer receives controller events. Events of one action are delivered
// in order, synchronously, while the controller is locked: observers must
// not call back into the controller.
type Observer interface {
	OnJourneyEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnJourneyEvent calls f.
func (f ObserverFunc) OnJourneyEvent(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) OnJourneyEvent(Event) {}
