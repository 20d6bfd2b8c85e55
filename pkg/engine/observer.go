package engine

import (
	"context"

	"github.com/offerforge/offerforge/pkg/events"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/navigator"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// sessionObserver persists, measures and broadcasts the events of one
// session. It runs under the controller lock.
type sessionObserver struct {
	engine      *Engine
	productType stepgraph.ProductType
}

func (o *sessionObserver) OnJourneyEvent(ev navigator.Event) {
	e := o.engine
	switch ev.Type {
	case navigator.EventStepChanged:
		e.metrics.RecordStepEntered(string(o.productType), string(ev.Step))
		e.events.Broadcast(events.StepChanged(ev.SessionID, string(ev.From), string(ev.Step), ev.Epoch, ev.At))

	case navigator.EventSearchStarted:
		e.events.Broadcast(events.SearchStarted(ev.SessionID, string(ev.Step), ev.Epoch, ev.At))

	case navigator.EventSearchCompleted:
		e.metrics.RecordSearch(string(ev.Step), "completed", ev.Elapsed)
		e.events.Broadcast(events.SearchCompleted(ev.SessionID, string(ev.Step), ev.Epoch, ev.Results, ev.Elapsed, ev.At))

	case navigator.EventSearchFailed:
		e.metrics.RecordSearch(string(ev.Step), "failed", ev.Elapsed)
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		e.events.Broadcast(events.SearchFailed(ev.SessionID, string(ev.Step), ev.Epoch, msg, ev.At))

	case navigator.EventSearchDiscarded:
		e.metrics.RecordSearch(string(ev.Step), "discarded", 0)

	case navigator.EventTotalsChanged:
		if ev.Totals != nil {
			e.events.Broadcast(events.TotalsChanged(ev.SessionID, *ev.Totals, ev.At))
		}

	case navigator.EventSessionChanged:
		if ev.Session == nil {
			return
		}
		if err := e.storage.SaveSession(context.Background(), ev.Session); err != nil {
			e.metrics.RecordPersistenceError("session")
			e.logger.Error("failed to persist draft",
				logger.KeySessionID, ev.SessionID,
				logger.KeyStep, string(ev.Session.CurrentStep),
				"error", err,
			)
		}
	}
}
