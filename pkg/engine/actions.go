package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/offerforge/offerforge/pkg/events"
	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/navigator"
	"github.com/offerforge/offerforge/pkg/offer"
	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/storage"
	"github.com/offerforge/offerforge/pkg/totals"
)

// observe counts rejected actions against the step they were tried on.
func (e *Engine) observe(err error) error {
	var ve *navigator.ValidationError
	if errors.As(err, &ve) {
		e.metrics.RecordValidationError(string(ve.Step))
	}
	return err
}

func (e *Engine) transition(id string, fn func(*navigator.Controller) (navigator.Transition, error)) (navigator.Transition, error) {
	ls, err := e.session(id)
	if err != nil {
		return navigator.Transition{}, err
	}
	tr, err := fn(ls.ctrl)
	return tr, e.observe(err)
}

func (e *Engine) apply(id string, fn func(*navigator.Controller) error) error {
	ls, err := e.session(id)
	if err != nil {
		return err
	}
	return e.observe(fn(ls.ctrl))
}

// Advance moves a session to its next step.
func (e *Engine) Advance(ctx context.Context, id string) (navigator.Transition, error) {
	return e.transition(id, func(c *navigator.Controller) (navigator.Transition, error) {
		return c.Advance(ctx)
	})
}

// Skip leaves an optional step empty and moves on.
func (e *Engine) Skip(ctx context.Context, id string) (navigator.Transition, error) {
	return e.transition(id, func(c *navigator.Controller) (navigator.Transition, error) {
		return c.Skip(ctx)
	})
}

// Retreat moves a session back to its previous input step.
func (e *Engine) Retreat(ctx context.Context, id string) (navigator.Transition, error) {
	return e.transition(id, func(c *navigator.Controller) (navigator.Transition, error) {
		return c.Retreat(ctx)
	})
}

// RetrySearch restarts the search of the current step.
func (e *Engine) RetrySearch(ctx context.Context, id string) (navigator.Transition, error) {
	return e.transition(id, func(c *navigator.Controller) (navigator.Transition, error) {
		return c.RetrySearch(ctx)
	})
}

// Select picks a candidate into slot.
func (e *Engine) Select(_ context.Context, id string, slot stepgraph.Slot, candidateID string) error {
	return e.apply(id, func(c *navigator.Controller) error {
		return c.Select(slot, candidateID)
	})
}

// Deselect removes a selection from slot.
func (e *Engine) Deselect(_ context.Context, id string, slot stepgraph.Slot, refID string) error {
	return e.apply(id, func(c *navigator.Controller) error {
		return c.Deselect(slot, refID)
	})
}

// SetDestination sets the destination of a session.
func (e *Engine) SetDestination(_ context.Context, id string, d journey.Destination) error {
	return e.apply(id, func(c *navigator.Controller) error {
		return c.SetDestination(d)
	})
}

// SetMarkup sets the markup policy of a session.
func (e *Engine) SetMarkup(_ context.Context, id string, m pricing.Markup) error {
	return e.apply(id, func(c *navigator.Controller) error {
		return c.SetMarkup(m)
	})
}

// SetDuration sets the stay length of a session.
func (e *Engine) SetDuration(_ context.Context, id string, nights int) error {
	return e.apply(id, func(c *navigator.Controller) error {
		return c.SetDuration(nights)
	})
}

// SetValidity sets the sale window of a session.
func (e *Engine) SetValidity(_ context.Context, id string, v journey.Validity) error {
	return e.apply(id, func(c *navigator.Controller) error {
		return c.SetValidity(v)
	})
}

// SetFilter sets the candidate filter of a step.
func (e *Engine) SetFilter(_ context.Context, id string, step stepgraph.StepID, text string) error {
	return e.apply(id, func(c *navigator.Controller) error {
		return c.SetFilter(step, text)
	})
}

// Reset returns a session to its first step.
func (e *Engine) Reset(_ context.Context, id string) error {
	return e.apply(id, func(c *navigator.Controller) error {
		return c.Reset()
	})
}

// Totals returns the priced view of a session.
func (e *Engine) Totals(_ context.Context, id string) (totals.Totals, error) {
	ls, err := e.session(id)
	if err != nil {
		return totals.Totals{}, err
	}
	return ls.ctrl.Totals(), nil
}

// RoomQuotes previews the markup of every room of the selected hotel.
func (e *Engine) RoomQuotes(_ context.Context, id string) ([]pricing.RoomQuote, error) {
	ls, err := e.session(id)
	if err != nil {
		return nil, err
	}
	return ls.ctrl.RoomQuotes(), nil
}

// Submit stores a finished session as an offer and closes the session.
// A session editing an offer stores a new revision of that offer.
func (e *Engine) Submit(ctx context.Context, id string) (*offer.Record, error) {
	ls, err := e.session(id)
	if err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, spanSubmit)
	defer span.End()

	payload, err := ls.ctrl.Submit()
	if err != nil {
		return nil, e.observe(err)
	}
	sess := ls.ctrl.Snapshot()

	// A session is submitted at most once.
	if _, ok := e.take(id); !ok {
		return nil, &SessionNotFoundError{ID: id}
	}
	rec, err := e.record(ctx, sess, payload)
	if err == nil {
		err = e.storage.SaveOffer(ctx, rec)
		if err != nil {
			e.metrics.RecordPersistenceError("offer")
			err = fmt.Errorf("failed to save offer: %w", err)
		}
	}
	if err != nil {
		e.putBack(id, ls)
		return nil, err
	}

	ls.ctrl.Close()
	e.finish(ctx, id, ls, "submitted")

	e.metrics.RecordOfferSubmitted(string(payload.ProductType), string(sess.Mode), payload.Pricing.Currency, payload.Pricing.Selling.Float())
	e.events.Broadcast(events.OfferSubmitted(id, rec.ID, string(payload.ProductType), rec.Revision,
		payload.Pricing.Selling.String(), payload.Pricing.Currency, e.now()))
	e.logger.InfoContext(ctx, "offer submitted",
		logger.KeySessionID, id,
		logger.KeyOfferID, rec.ID,
		"revision", rec.Revision,
		"selling", payload.Pricing.Selling.String(),
		"currency", payload.Pricing.Currency,
	)
	return rec, nil
}

// record builds the offer record of sess: a new offer, or the next
// revision of the offer being edited.
func (e *Engine) record(ctx context.Context, sess *journey.Session, payload offer.Payload) (*offer.Record, error) {
	if sess.Mode != journey.ModeEdit || sess.SourceOfferID == "" {
		return offer.NewRecord(sess.ID, payload, e.now()), nil
	}
	cur, err := e.storage.GetOffer(ctx, sess.SourceOfferID)
	if err != nil {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) {
			e.logger.Warn("edited offer no longer exists, storing a new one",
				logger.KeySessionID, sess.ID, logger.KeyOfferID, sess.SourceOfferID)
			return offer.NewRecord(sess.ID, payload, e.now()), nil
		}
		return nil, err
	}
	return cur.Revise(sess.ID, payload, e.now()), nil
}

// GetOffer returns a stored offer.
func (e *Engine) GetOffer(ctx context.Context, id string) (*offer.Record, error) {
	return e.storage.GetOffer(ctx, id)
}

// ListOffers lists stored offers.
func (e *Engine) ListOffers(ctx context.Context, filter *storage.Filter) ([]*offer.Record, int, error) {
	return e.storage.ListOffers(ctx, filter)
}
