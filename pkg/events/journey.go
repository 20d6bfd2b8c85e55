package events

import (
	"time"
)

// Event types.
const (
	TypeStepChanged     = "journey.step_changed"
	TypeSearchStarted   = "journey.search_started"
	TypeSearchCompleted = "journey.search_completed"
	TypeSearchFailed    = "journey.search_failed"
	TypeTotalsChanged   = "journey.totals_changed"
	TypeSessionClosed   = "journey.closed"
	TypeOfferSubmitted  = "offer.submitted"
)

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}

// StepChanged builds a step change event.
func StepChanged(sessionID, from, to string, epoch uint64, at time.Time) Event {
	return Event{
		Type:      TypeStepChanged,
		SessionID: sessionID,
		Timestamp: stamp(at),
		Payload: map[string]any{
			"from":  from,
			"step":  to,
			"epoch": epoch,
		},
	}
}

// SearchStarted builds a search start event.
func SearchStarted(sessionID, step string, epoch uint64, at time.Time) Event {
	return Event{
		Type:      TypeSearchStarted,
		SessionID: sessionID,
		Timestamp: stamp(at),
		Payload: map[string]any{
			"step":  step,
			"epoch": epoch,
		},
	}
}

// SearchCompleted builds a search completion event.
func SearchCompleted(sessionID, step string, epoch uint64, results int, elapsed time.Duration, at time.Time) Event {
	return Event{
		Type:      TypeSearchCompleted,
		SessionID: sessionID,
		Timestamp: stamp(at),
		Payload: map[string]any{
			"step":       step,
			"epoch":      epoch,
			"results":    results,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	}
}

// SearchFailed builds a search failure event.
func SearchFailed(sessionID, step string, epoch uint64, message string, at time.Time) Event {
	return Event{
		Type:      TypeSearchFailed,
		SessionID: sessionID,
		Timestamp: stamp(at),
		Payload: map[string]any{
			"step":  step,
			"epoch": epoch,
			"error": message,
		},
	}
}

// TotalsChanged builds a totals event. totals is sent as is.
func TotalsChanged(sessionID string, totals any, at time.Time) Event {
	return Event{
		Type:      TypeTotalsChanged,
		SessionID: sessionID,
		Timestamp: stamp(at),
		Payload:   totals,
	}
}

// SessionClosed builds the last event of a session. reason is
// "submitted" or "cancelled".
func SessionClosed(sessionID, reason string, at time.Time) Event {
	return Event{
		Type:      TypeSessionClosed,
		SessionID: sessionID,
		Timestamp: stamp(at),
		Payload: map[string]any{
			"reason": reason,
		},
	}
}

// OfferSubmitted builds an offer submission event.
func OfferSubmitted(sessionID, offerID, productType string, revision int, selling any, currency string, at time.Time) Event {
	return Event{
		Type:      TypeOfferSubmitted,
		SessionID: sessionID,
		Timestamp: stamp(at),
		Payload: map[string]any{
			"offer_id":     offerID,
			"product_type": productType,
			"revision":     revision,
			"selling":      selling,
			"currency":     currency,
		},
	}
}
