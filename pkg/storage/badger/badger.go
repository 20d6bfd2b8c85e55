// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/offer"
	"github.com/offerforge/offerforge/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStorage implements the Storage interface using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path).WithLogger(nil)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

const (
	sessionPrefix = "session:"
	offerPrefix   = "offer:"
)

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

func offerKey(id string) []byte {
	return []byte(offerPrefix + id)
}

func serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

func deserialize(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return nil
}

// getInTxn decodes the value at key into v.
func getInTxn(txn *badger.Txn, key []byte, entity, id string, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &storage.NotFoundError{EntityType: entity, ID: id}
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return deserialize(val, v)
	})
}

// scan decodes every value under prefix with decode. Values that fail to
// decode are skipped.
func scan(txn *badger.Txn, prefix string, decode func([]byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		err := it.Item().Value(decode)
		var serr *storage.SerializationError
		if errors.As(err, &serr) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveSession saves a session to Badger.
func (b *BadgerStorage) SaveSession(_ context.Context, s *journey.Session) error {
	data, err := serialize(s)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(s.ID), data)
	})
}

// GetSession retrieves a session by ID.
func (b *BadgerStorage) GetSession(_ context.Context, id string) (*journey.Session, error) {
	var s journey.Session
	err := b.db.View(func(txn *badger.Txn) error {
		return getInTxn(txn, sessionKey(id), "session", id, &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions lists sessions newest first with optional filtering and pagination.
func (b *BadgerStorage) ListSessions(_ context.Context, filter *storage.Filter) ([]*journey.Session, int, error) {
	var sessions []*journey.Session

	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, sessionPrefix, func(val []byte) error {
			var s journey.Session
			if err := deserialize(val, &s); err != nil {
				return err
			}
			if filter.Accepts(string(s.ProductType)) {
				sessions = append(sessions, &s)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	storage.SortSessions(sessions)
	return storage.Page(sessions, filter), len(sessions), nil
}

// DeleteSession deletes a session.
func (b *BadgerStorage) DeleteSession(_ context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{EntityType: "session", ID: id}
			}
			return err
		}
		return txn.Delete(sessionKey(id))
	})
}

// SaveOffer saves an offer record. A record may only replace a stored one
// with a lower revision; the check and the write share one transaction.
func (b *BadgerStorage) SaveOffer(_ context.Context, r *offer.Record) error {
	data, err := serialize(r)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		var cur offer.Record
		err := getInTxn(txn, offerKey(r.ID), "offer", r.ID, &cur)
		var nf *storage.NotFoundError
		switch {
		case errors.As(err, &nf):
		case err != nil:
			return err
		case cur.Revision >= r.Revision:
			return &storage.DuplicateKeyError{EntityType: "offer", ID: r.ID}
		}
		return txn.Set(offerKey(r.ID), data)
	})
}

// GetOffer retrieves an offer by ID.
func (b *BadgerStorage) GetOffer(_ context.Context, id string) (*offer.Record, error) {
	var r offer.Record
	err := b.db.View(func(txn *badger.Txn) error {
		return getInTxn(txn, offerKey(id), "offer", id, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListOffers lists offers newest first with optional filtering and pagination.
func (b *BadgerStorage) ListOffers(_ context.Context, filter *storage.Filter) ([]*offer.Record, int, error) {
	var offers []*offer.Record

	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, offerPrefix, func(val []byte) error {
			var r offer.Record
			if err := deserialize(val, &r); err != nil {
				return err
			}
			if filter.Accepts(string(r.Payload.ProductType)) {
				offers = append(offers, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	storage.SortOffers(offers)
	return storage.Page(offers, filter), len(offers), nil
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	// GC failures are not fatal to shutdown.
	_ = b.db.RunValueLogGC(0.5)
	return b.db.Close()
}
