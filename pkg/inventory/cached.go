package inventory

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// CacheConfig configures a CachedProvider.
type CacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// DefaultCacheConfig returns a five minute cache under "offerforge:inventory:".
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:       5 * time.Minute,
		KeyPrefix: "offerforge:inventory:",
	}
}

// CacheObserver is notified of cache hits and misses.
type CacheObserver interface {
	CacheResult(step stepgraph.StepID, hit bool)
}

// CachedProvider memoizes search results in redis. Cache failures degrade
// to a direct search; they never fail the search itself. Failed searches
// are not cached.
type CachedProvider struct {
	next     Provider
	client   redis.Cmdable
	cfg      CacheConfig
	log      logger.Logger
	observer CacheObserver
}

// NewCachedProvider decorates next with a redis cache.
func NewCachedProvider(next Provider, client redis.Cmdable, cfg CacheConfig, log logger.Logger) *CachedProvider {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultCacheConfig().KeyPrefix
	}
	if log == nil {
		log = logger.Global()
	}
	return &CachedProvider{
		next:   next,
		client: client,
		cfg:    cfg,
		log:    log.With("component", "inventory.cache"),
	}
}

// SetObserver registers a hit/miss observer.
func (p *CachedProvider) SetObserver(o CacheObserver) {
	p.observer = o
}

// Search implements Provider.
func (p *CachedProvider) Search(ctx context.Context, step stepgraph.StepID, criteria Criteria) ([]journey.Candidate, error) {
	key := p.key(step, criteria)

	cached, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var items []journey.Candidate
		if jsonErr := json.Unmarshal(cached, &items); jsonErr == nil {
			p.observe(step, true)
			if items == nil {
				items = []journey.Candidate{}
			}
			return items, nil
		}
		p.log.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.WarnContext(ctx, "inventory cache read failed", "key", key, "error", err)
	}
	p.observe(step, false)

	items, err := p.next.Search(ctx, step, criteria)
	if err != nil {
		return nil, err
	}

	if payload, mErr := json.Marshal(items); mErr == nil {
		if sErr := p.client.Set(ctx, key, payload, p.cfg.TTL).Err(); sErr != nil {
			p.log.WarnContext(ctx, "inventory cache write failed", "key", key, "error", sErr)
		}
	}
	return items, nil
}

func (p *CachedProvider) observe(step stepgraph.StepID, hit bool) {
	if p.observer != nil {
		p.observer.CacheResult(step, hit)
	}
}

// key derives a stable cache key from the step and criteria.
func (p *CachedProvider) key(step stepgraph.StepID, c Criteria) string {
	parts := []string{
		string(step),
		strings.ToLower(strings.TrimSpace(c.Destination.City)),
		strings.ToLower(strings.TrimSpace(c.Destination.Country)),
		string(c.ProductType),
		strconv.Itoa(c.Nights),
	}
	ctxKeys := make([]string, 0, len(c.Context))
	for k := range c.Context {
		ctxKeys = append(ctxKeys, k)
	}
	sort.Strings(ctxKeys)
	for _, k := range ctxKeys {
		parts = append(parts, k+"="+c.Context[k])
	}

	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return p.cfg.KeyPrefix + string(step) + ":" + hex.EncodeToString(sum[:])
}
