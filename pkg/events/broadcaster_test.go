package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case event := <-sub.C:
		return event
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast event")
		return Event{}
	}
}

func TestBroadcaster_SubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(1)

	b.Broadcast(Event{Type: TypeStepChanged, SessionID: "s-1"})

	event := receive(t, sub)
	if event.Type != TypeStepChanged {
		t.Fatalf("type = %q, want %s", event.Type, TypeStepChanged)
	}
	if event.ID == "" {
		t.Error("expected generated event id")
	}
	if event.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	b.Unsubscribe(sub)
	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	// Unsubscribing twice is a no-op.
	b.Unsubscribe(sub)
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0", b.Subscribers())
	}
}

func TestBroadcaster_SessionFilter(t *testing.T) {
	b := NewBroadcaster()
	all := b.Subscribe(4)
	one := b.SubscribeSession("s-1", 4)

	b.Broadcast(SearchStarted("s-2", "hotel-search", 1, time.Time{}))
	b.Broadcast(SearchStarted("s-1", "hotel-search", 2, time.Time{}))

	if got := receive(t, one); got.SessionID != "s-1" {
		t.Fatalf("session subscriber got %q", got.SessionID)
	}
	select {
	case e := <-one.C:
		t.Fatalf("unexpected event for other session: %+v", e)
	default:
	}

	if got := receive(t, all); got.SessionID != "s-2" {
		t.Fatalf("first event session = %q, want s-2", got.SessionID)
	}
	if got := receive(t, all); got.SessionID != "s-1" {
		t.Fatalf("second event session = %q, want s-1", got.SessionID)
	}
}

func TestBroadcaster_DropOnOverflow(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(1)

	b.Broadcast(Event{Type: TypeTotalsChanged})
	b.Broadcast(Event{Type: TypeTotalsChanged})

	receive(t, sub)
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
}

func TestBroadcaster_Helpers(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(8)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	b.Broadcast(StepChanged("s-1", "destination", "hotel-search", 3, at))
	b.Broadcast(SearchCompleted("s-1", "hotel-search", 3, 12, 40*time.Millisecond, at))
	b.Broadcast(SearchFailed("s-1", "hotel-search", 4, "upstream down", at))
	b.Broadcast(OfferSubmitted("s-1", "o-1", "hotel", 1, "330.00", "USD", at))
	b.Broadcast(SessionClosed("s-1", "submitted", at))

	want := []string{TypeStepChanged, TypeSearchCompleted, TypeSearchFailed, TypeOfferSubmitted, TypeSessionClosed}
	for _, typ := range want {
		e := receive(t, sub)
		if e.Type != typ {
			t.Fatalf("type = %q, want %q", e.Type, typ)
		}
		if !e.Timestamp.Equal(at) {
			t.Errorf("%s timestamp = %v, want %v", typ, e.Timestamp, at)
		}
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	sub := b.SubscribeSession("s-1", 0)
	b.Close()

	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel closed")
	}
	b.Broadcast(Event{Type: TypeStepChanged, SessionID: "s-1"})
}
