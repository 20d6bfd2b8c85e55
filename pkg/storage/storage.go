// Package storage provides persistent storage for draft sessions and
// submitted offers.
package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/offer"
)

// Storage defines the interface for persistent storage operations.
type Storage interface {
	// Draft sessions
	SaveSession(ctx context.Context, s *journey.Session) error
	GetSession(ctx context.Context, id string) (*journey.Session, error)
	ListSessions(ctx context.Context, filter *Filter) ([]*journey.Session, int, error)
	DeleteSession(ctx context.Context, id string) error

	// Submitted offers
	SaveOffer(ctx context.Context, r *offer.Record) error
	GetOffer(ctx context.Context, id string) (*offer.Record, error)
	ListOffers(ctx context.Context, filter *Filter) ([]*offer.Record, int, error)

	// Lifecycle
	Close() error
}

// Filter defines filtering options for listing sessions and offers.
type Filter struct {
	ProductTypes []string `json:"product_types,omitempty"`
	Limit        int      `json:"limit"`
	Offset       int      `json:"offset"`
}

// Accepts reports whether an entity of product type pt passes the filter.
func (f *Filter) Accepts(pt string) bool {
	if f == nil || len(f.ProductTypes) == 0 {
		return true
	}
	return slices.Contains(f.ProductTypes, pt)
}

// Page applies the filter's pagination to a sorted result set.
func Page[T any](items []T, f *Filter) []T {
	if f == nil || f.Limit <= 0 {
		return items
	}
	start := min(max(f.Offset, 0), len(items))
	end := min(start+f.Limit, len(items))
	return items[start:end]
}

// SortSessions orders sessions newest first, by id on ties.
func SortSessions(items []*journey.Session) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// SortOffers orders offers newest first, by id on ties.
func SortOffers(items []*offer.Record) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// CopyOffer returns a copy of r that shares no slices with it.
func CopyOffer(r *offer.Record) *offer.Record {
	cp := *r
	cp.Payload.Components = slices.Clone(r.Payload.Components)
	if r.Payload.Validity != nil {
		v := *r.Payload.Validity
		cp.Payload.Validity = &v
	}
	return &cp
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// DuplicateKeyError indicates that an entity with the given ID already exists.
type DuplicateKeyError struct {
	EntityType string
	ID         string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }
