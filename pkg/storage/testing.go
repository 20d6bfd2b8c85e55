package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/offer"
	"github.com/offerforge/offerforge/pkg/pricing"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// StorageTestSuite defines a test suite that can be run against any Storage implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("SessionCRUD", s.TestSessionCRUD)
	t.Run("SessionRoundTrip", s.TestSessionRoundTrip)
	t.Run("ListSessionsWithFilter", s.TestListSessionsWithFilter)
	t.Run("ListSessionsWithPagination", s.TestListSessionsWithPagination)
	t.Run("OfferRevisions", s.TestOfferRevisions)
	t.Run("ListOffers", s.TestListOffers)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("NotFound", s.TestNotFound)
}

var suiteEpoch = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func testSession(id string, pt stepgraph.ProductType, created time.Time) *journey.Session {
	return &journey.Session{
		ID:             id,
		ProductType:    pt,
		Mode:           journey.ModeCreate,
		CurrentStep:    stepgraph.Destination,
		Markup:         pricing.Markup{Kind: pricing.MarkupPercentage},
		Components:     map[stepgraph.Slot][]journey.Component{},
		CandidatePools: map[stepgraph.StepID][]journey.Candidate{},
		SearchFilters:  map[stepgraph.StepID]string{},
		Search:         journey.SearchState{Status: journey.SearchIdle},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func testOffer(id string, pt stepgraph.ProductType, revision int, created time.Time) *offer.Record {
	return &offer.Record{
		ID:        id,
		SessionID: "sess-" + id,
		Revision:  revision,
		Payload: offer.Payload{
			ProductType: pt,
			Destination: journey.Destination{City: "Cancun"},
			Markup:      pricing.Markup{Kind: pricing.MarkupFixed, Value: 25},
			Components: []offer.Component{{
				Slot:    stepgraph.SlotActivity,
				RefID:   "a1",
				Display: journey.Display{Name: "Snorkel"},
				Base:    4000,
				Selling: 6500,
			}},
			Pricing: offer.Pricing{Base: 4000, Selling: 6500, Commission: 2500, Currency: "USD"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// TestSessionCRUD tests basic session CRUD operations.
func (s *StorageTestSuite) TestSessionCRUD(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	sess := testSession("sess-1", stepgraph.Hotel, suiteEpoch)
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ID != sess.ID || got.ProductType != sess.ProductType {
		t.Errorf("expected %s/%s, got %s/%s", sess.ID, sess.ProductType, got.ID, got.ProductType)
	}

	got.CurrentStep = stepgraph.HotelSelect
	got.Destination = journey.Destination{City: "Tulum"}
	if err := store.SaveSession(ctx, got); err != nil {
		t.Fatalf("SaveSession (update) failed: %v", err)
	}

	updated, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession (after update) failed: %v", err)
	}
	if updated.CurrentStep != stepgraph.HotelSelect {
		t.Errorf("expected step %s, got %s", stepgraph.HotelSelect, updated.CurrentStep)
	}
	if updated.Destination.City != "Tulum" {
		t.Errorf("expected city Tulum, got %q", updated.Destination.City)
	}

	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := store.GetSession(ctx, "sess-1"); err == nil {
		t.Error("expected error when getting deleted session")
	}
}

// TestSessionRoundTrip checks that selections and pools survive storage.
func (s *StorageTestSuite) TestSessionRoundTrip(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	from := suiteEpoch.AddDate(0, 1, 0)
	sess := testSession("sess-rt", stepgraph.Package, suiteEpoch)
	sess.CurrentStep = stepgraph.ActivitySelect
	sess.DurationNights = 4
	sess.Epoch = 7
	sess.Validity = journey.Validity{From: &from}
	sess.Components[stepgraph.SlotHotel] = []journey.Component{{
		Slot:    stepgraph.SlotHotel,
		RefID:   "h1",
		RoomID:  "std",
		Display: journey.Display{Name: "Beach Resort", Stars: 5},
		Pricing: pricing.RawPricing{
			CapacityPrices: map[pricing.Occupancy]pricing.PassengerPrices{
				pricing.OccupancyDouble: {Adult: pricing.NewAmount(120)},
			},
			Currency: "MXN",
		},
	}}
	sess.CandidatePools[stepgraph.ActivitySearch] = []journey.Candidate{{ID: "a1"}, {ID: "a2"}}
	sess.SearchFilters[stepgraph.ActivitySelect] = "snork"

	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	got, err := store.GetSession(ctx, "sess-rt")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	hotel, ok := got.Component(stepgraph.SlotHotel)
	if !ok {
		t.Fatal("expected hotel component")
	}
	if price := pricing.ExtractBaseAdultPrice(hotel.Pricing); price != 120 {
		t.Errorf("expected hotel price 120, got %v", price)
	}
	if hotel.Display.Stars != 5 || hotel.RoomID != "std" {
		t.Errorf("hotel display or room lost: %+v", hotel)
	}
	if n := len(got.CandidatePools[stepgraph.ActivitySearch]); n != 2 {
		t.Errorf("expected 2 pooled candidates, got %d", n)
	}
	if got.SearchFilters[stepgraph.ActivitySelect] != "snork" {
		t.Errorf("expected filter to survive, got %q", got.SearchFilters[stepgraph.ActivitySelect])
	}
	if got.Epoch != 7 || got.DurationNights != 4 {
		t.Errorf("expected epoch 7 and 4 nights, got %d and %d", got.Epoch, got.DurationNights)
	}
	if got.Validity.From == nil || !got.Validity.From.Equal(from) {
		t.Errorf("expected validity from %v, got %v", from, got.Validity.From)
	}
}

// TestListSessionsWithFilter tests product type filtering.
func (s *StorageTestSuite) TestListSessionsWithFilter(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	types := []stepgraph.ProductType{stepgraph.Hotel, stepgraph.Flight, stepgraph.Hotel, stepgraph.Activity}
	for i, pt := range types {
		sess := testSession(fmt.Sprintf("sess-%d", i), pt, suiteEpoch.Add(time.Duration(i)*time.Minute))
		if err := store.SaveSession(ctx, sess); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	hotels, total, err := store.ListSessions(ctx, &Filter{ProductTypes: []string{"hotel"}})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if total != 2 || len(hotels) != 2 {
		t.Fatalf("expected 2 hotel sessions, got %d (total %d)", len(hotels), total)
	}
	if hotels[0].ID != "sess-2" {
		t.Errorf("expected newest first, got %s", hotels[0].ID)
	}

	all, total, err := store.ListSessions(ctx, nil)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Errorf("expected 4 sessions, got %d (total %d)", len(all), total)
	}
}

// TestListSessionsWithPagination tests limit and offset.
func (s *StorageTestSuite) TestListSessionsWithPagination(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sess := testSession(fmt.Sprintf("sess-%d", i), stepgraph.Flight, suiteEpoch.Add(time.Duration(i)*time.Minute))
		if err := store.SaveSession(ctx, sess); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	page, total, err := store.ListSessions(ctx, &Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(page) != 2 || page[0].ID != "sess-3" || page[1].ID != "sess-2" {
		t.Errorf("unexpected page: %v", sessionIDs(page))
	}

	page, _, err = store.ListSessions(ctx, &Filter{Limit: 10, Offset: 10})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(page))
	}
}

// TestOfferRevisions tests that stale revisions are rejected.
func (s *StorageTestSuite) TestOfferRevisions(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	rec := testOffer("offer-1", stepgraph.Activity, 1, suiteEpoch)
	if err := store.SaveOffer(ctx, rec); err != nil {
		t.Fatalf("SaveOffer failed: %v", err)
	}

	err := store.SaveOffer(ctx, rec)
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError for same revision, got %v", err)
	}

	rev := rec.Revise("sess-2", rec.Payload, suiteEpoch.Add(time.Hour))
	rev.Payload.Pricing.Selling = 7000
	if err := store.SaveOffer(ctx, rev); err != nil {
		t.Fatalf("SaveOffer (revision) failed: %v", err)
	}

	got, err := store.GetOffer(ctx, "offer-1")
	if err != nil {
		t.Fatalf("GetOffer failed: %v", err)
	}
	if got.Revision != 2 || got.SessionID != "sess-2" {
		t.Errorf("expected revision 2 from sess-2, got %d from %s", got.Revision, got.SessionID)
	}
	if got.Payload.Pricing.Selling != 7000 {
		t.Errorf("expected selling 7000, got %d", got.Payload.Pricing.Selling)
	}
	if len(got.Payload.Components) != 1 || got.Payload.Components[0].RefID != "a1" {
		t.Errorf("components lost: %+v", got.Payload.Components)
	}
}

// TestListOffers tests listing offers with a filter.
func (s *StorageTestSuite) TestListOffers(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	types := []stepgraph.ProductType{stepgraph.Activity, stepgraph.Package, stepgraph.Activity}
	for i, pt := range types {
		rec := testOffer(fmt.Sprintf("offer-%d", i), pt, 1, suiteEpoch.Add(time.Duration(i)*time.Minute))
		if err := store.SaveOffer(ctx, rec); err != nil {
			t.Fatalf("SaveOffer failed: %v", err)
		}
	}

	offers, total, err := store.ListOffers(ctx, &Filter{ProductTypes: []string{"activity"}, Limit: 1})
	if err != nil {
		t.Fatalf("ListOffers failed: %v", err)
	}
	if total != 2 || len(offers) != 1 {
		t.Fatalf("expected 1 of 2 activity offers, got %d (total %d)", len(offers), total)
	}
	if offers[0].ID != "offer-2" {
		t.Errorf("expected newest offer first, got %s", offers[0].ID)
	}
}

// TestConcurrentAccess tests concurrent read/write operations.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.SaveSession(ctx, testSession("sess-concurrent", stepgraph.Hotel, suiteEpoch)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			got, err := store.GetSession(ctx, "sess-concurrent")
			if err != nil {
				errs <- err
				return
			}
			got.DurationNights = idx
			if err := store.SaveSession(ctx, got); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	if _, err := store.GetSession(ctx, "sess-concurrent"); err != nil {
		t.Errorf("GetSession after concurrent updates failed: %v", err)
	}
}

// TestNotFound tests NotFoundError for sessions and offers.
func (s *StorageTestSuite) TestNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	var nf *NotFoundError
	if _, err := store.GetSession(ctx, "missing"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError for missing session, got %v", err)
	}
	if err := store.DeleteSession(ctx, "missing"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError when deleting missing session, got %v", err)
	}
	if _, err := store.GetOffer(ctx, "missing"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError for missing offer, got %v", err)
	}
	if nf.EntityType != "offer" || nf.ID != "missing" {
		t.Errorf("unexpected NotFoundError fields: %+v", nf)
	}
}

func sessionIDs(items []*journey.Session) []string {
	ids := make([]string, len(items))
	for i, s := range items {
		ids[i] = s.ID
	}
	return ids
}
