// Package redis provides a Redis-based implementation of the storage
// interface, for deployments where several API replicas share drafts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/offer"
	"github.com/offerforge/offerforge/pkg/storage"
)

// Config holds configuration for RedisStorage.
type Config struct {
	KeyPrefix string
	// SessionTTL expires idle drafts. Zero keeps them forever.
	SessionTTL time.Duration
}

// DefaultConfig returns the default Redis storage configuration.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "offerforge:",
		SessionTTL: 24 * time.Hour,
	}
}

// RedisStorage implements the Storage interface on top of plain string keys
// plus one index set per entity type.
type RedisStorage struct {
	client redis.Cmdable
	config Config
}

// NewRedisStorage creates a Redis storage and checks connectivity.
func NewRedisStorage(ctx context.Context, client redis.Cmdable, config Config) (*RedisStorage, error) {
	if client == nil {
		return nil, &storage.StorageUnavailableError{Cause: errors.New("redis client is nil")}
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return &RedisStorage{client: client, config: config}, nil
}

func (r *RedisStorage) sessionKey(id string) string { return r.config.KeyPrefix + "session:" + id }
func (r *RedisStorage) offerKey(id string) string   { return r.config.KeyPrefix + "offer:" + id }
func (r *RedisStorage) sessionIndex() string        { return r.config.KeyPrefix + "sessions" }
func (r *RedisStorage) offerIndex() string          { return r.config.KeyPrefix + "offers" }

func unavailable(err error) error {
	return &storage.StorageUnavailableError{Cause: err}
}

// load reads key into v. It reports false when the key does not exist.
func (r *RedisStorage) load(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return true, nil
}

func (r *RedisStorage) store(ctx context.Context, key, index, id string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return unavailable(err)
	}
	if err := r.client.SAdd(ctx, index, id).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// members walks an index set, pruning ids whose key has expired.
func (r *RedisStorage) members(ctx context.Context, index string, visit func(id string) (bool, error)) error {
	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return unavailable(err)
	}
	for _, id := range ids {
		ok, err := visit(id)
		var serr *storage.SerializationError
		switch {
		case errors.As(err, &serr):
			continue
		case err != nil:
			return err
		case !ok:
			r.client.SRem(ctx, index, id)
		}
	}
	return nil
}

// SaveSession saves a session, refreshing its expiry.
func (r *RedisStorage) SaveSession(ctx context.Context, s *journey.Session) error {
	return r.store(ctx, r.sessionKey(s.ID), r.sessionIndex(), s.ID, s, r.config.SessionTTL)
}

// GetSession retrieves a session by ID.
func (r *RedisStorage) GetSession(ctx context.Context, id string) (*journey.Session, error) {
	var s journey.Session
	ok, err := r.load(ctx, r.sessionKey(id), &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &storage.NotFoundError{EntityType: "session", ID: id}
	}
	return &s, nil
}

// ListSessions lists sessions newest first with optional filtering and pagination.
func (r *RedisStorage) ListSessions(ctx context.Context, filter *storage.Filter) ([]*journey.Session, int, error) {
	var sessions []*journey.Session
	err := r.members(ctx, r.sessionIndex(), func(id string) (bool, error) {
		var s journey.Session
		ok, err := r.load(ctx, r.sessionKey(id), &s)
		if ok && filter.Accepts(string(s.ProductType)) {
			sessions = append(sessions, &s)
		}
		return ok, err
	})
	if err != nil {
		return nil, 0, err
	}

	storage.SortSessions(sessions)
	return storage.Page(sessions, filter), len(sessions), nil
}

// DeleteSession deletes a session.
func (r *RedisStorage) DeleteSession(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return unavailable(err)
	}
	r.client.SRem(ctx, r.sessionIndex(), id)
	if n == 0 {
		return &storage.NotFoundError{EntityType: "session", ID: id}
	}
	return nil
}

// SaveOffer saves an offer record. A record may only replace a stored one
// with a lower revision.
//
// TODO: guard the revision check with WATCH once replicas edit the same
// offer concurrently.
func (r *RedisStorage) SaveOffer(ctx context.Context, rec *offer.Record) error {
	var cur offer.Record
	ok, err := r.load(ctx, r.offerKey(rec.ID), &cur)
	if err != nil {
		return err
	}
	if ok && cur.Revision >= rec.Revision {
		return &storage.DuplicateKeyError{EntityType: "offer", ID: rec.ID}
	}
	return r.store(ctx, r.offerKey(rec.ID), r.offerIndex(), rec.ID, rec, 0)
}

// GetOffer retrieves an offer by ID.
func (r *RedisStorage) GetOffer(ctx context.Context, id string) (*offer.Record, error) {
	var rec offer.Record
	ok, err := r.load(ctx, r.offerKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &storage.NotFoundError{EntityType: "offer", ID: id}
	}
	return &rec, nil
}

// ListOffers lists offers newest first with optional filtering and pagination.
func (r *RedisStorage) ListOffers(ctx context.Context, filter *storage.Filter) ([]*offer.Record, int, error) {
	var offers []*offer.Record
	err := r.members(ctx, r.offerIndex(), func(id string) (bool, error) {
		var rec offer.Record
		ok, err := r.load(ctx, r.offerKey(id), &rec)
		if ok && filter.Accepts(string(rec.Payload.ProductType)) {
			offers = append(offers, &rec)
		}
		return ok, err
	})
	if err != nil {
		return nil, 0, err
	}

	storage.SortOffers(offers)
	return storage.Page(offers, filter), len(offers), nil
}

// Close is a no-op; the client is owned by the caller.
func (r *RedisStorage) Close() error {
	return nil
}
