// Package cache memoises raw /search response bodies keyed by the encoded
// request, with concurrent identical lookups collapsed into one round trip.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/redis"
)

const keyPrefix = "strobe:search:"

// minBody is the smallest decodable /search response: the u32 hit count.
const minBody = 4

// Store is the byte-oriented key/value backend. *pkgredis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// IsMiss reports whether err from Store.Get means the key is absent.
type IsMiss func(error) bool

type QueryCache struct {
	store  Store
	isMiss IsMiss
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a cache over store. A nil isMiss uses the Redis nil check.
func New(store Store, ttl time.Duration, isMiss IsMiss) *QueryCache {
	if isMiss == nil {
		isMiss = pkgredis.IsNilError
	}
	return &QueryCache{
		store:  store,
		isMiss: isMiss,
		ttl:    ttl,
		logger: logger.WithComponent("query-cache"),
	}
}

func (c *QueryCache) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !c.isMiss(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (c *QueryCache) set(ctx context.Context, key string, body []byte) {
	if err := c.store.Set(ctx, key, body, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached body for request, or calls compute once per
// key across concurrent callers and caches a successful result. Bodies too
// short to decode are returned but never stored. Cache errors degrade to a
// miss.
func (c *QueryCache) GetOrCompute(ctx context.Context, request []byte, compute func() ([]byte, error)) ([]byte, bool, error) {
	key := Key(request)
	if body, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "key", key)
		return body, true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if body, ok := c.get(ctx, key); ok {
			return body, nil
		}
		body, err := compute()
		if err != nil {
			return nil, err
		}
		if len(body) >= minBody {
			c.set(ctx, key, body)
		}
		return body, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]byte), false, nil
}

// Invalidate drops every cached response.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key derives the cache key of an encoded request. The request bytes already
// fix k, flags, signature and text, so no further normalisation is needed.
func Key(request []byte) string {
	hash := sha256.Sum256(request)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
