// Package memory keeps drafts and offers in process. Nothing survives a
// restart, so it suits tests and single-node development.
package memory

import (
	"context"
	"sync"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/offer"
	"github.com/offerforge/offerforge/pkg/storage"
)

// MemoryStorage stores deep copies, so callers never share state with it.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*journey.Session
	offers   map[string]*offer.Record
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*journey.Session),
		offers:   make(map[string]*offer.Record),
	}
}

func (m *MemoryStorage) SaveSession(_ context.Context, s *journey.Session) error {
	m.mu.Lock()
	m.sessions[s.ID] = s.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) GetSession(_ context.Context, id string) (*journey.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, &storage.NotFoundError{EntityType: "session", ID: id}
}

func (m *MemoryStorage) ListSessions(_ context.Context, filter *storage.Filter) ([]*journey.Session, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	page, total := list(m.sessions, filter,
		func(s *journey.Session) string { return string(s.ProductType) },
		storage.SortSessions,
		(*journey.Session).Clone,
	)
	return page, total, nil
}

func (m *MemoryStorage) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return &storage.NotFoundError{EntityType: "session", ID: id}
	}
	delete(m.sessions, id)
	return nil
}

// SaveOffer only replaces a stored record of a lower revision.
func (m *MemoryStorage) SaveOffer(_ context.Context, r *offer.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.offers[r.ID]; ok && cur.Revision >= r.Revision {
		return &storage.DuplicateKeyError{EntityType: "offer", ID: r.ID}
	}
	m.offers[r.ID] = storage.CopyOffer(r)
	return nil
}

func (m *MemoryStorage) GetOffer(_ context.Context, id string) (*offer.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.offers[id]; ok {
		return storage.CopyOffer(r), nil
	}
	return nil, &storage.NotFoundError{EntityType: "offer", ID: id}
}

func (m *MemoryStorage) ListOffers(_ context.Context, filter *storage.Filter) ([]*offer.Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	page, total := list(m.offers, filter,
		func(r *offer.Record) string { return string(r.Payload.ProductType) },
		storage.SortOffers,
		storage.CopyOffer,
	)
	return page, total, nil
}

func (m *MemoryStorage) Close() error { return nil }

// list filters items by product type, sorts them newest first and copies
// the requested page. total counts every match.
func list[T any](items map[string]T, filter *storage.Filter, productType func(T) string, sortFn func([]T), copyFn func(T) T) ([]T, int) {
	var matched []T
	for _, item := range items {
		if filter.Accepts(productType(item)) {
			matched = append(matched, item)
		}
	}
	sortFn(matched)

	page := storage.Page(matched, filter)
	out := make([]T, len(page))
	for i, item := range page {
		out[i] = copyFn(item)
	}
	return out, len(matched)
}
