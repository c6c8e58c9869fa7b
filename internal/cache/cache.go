// Package cache provides a read-through response cache for hot encounter
// queries. Entries are CBOR-encoded; Redis backs production deployments
// and an in-memory store backs tests and single-node setups.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrMiss is returned by stores when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// DefaultListTTL bounds how stale a cached nearby list can get.
const DefaultListTTL = 2 * time.Minute

// Store is the backing key-value layer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// Cache wraps a Store with CBOR encoding and fail-open semantics: a store
// error is logged and treated as a miss so a cache outage never takes the
// read path down.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Cache. A zero ttl falls back to DefaultListTTL.
func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultListTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// Get loads the entry for key into dest. It returns false on a miss or on
// any store or decode error.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := cbor.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache entry decode failed", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores value under key with the cache TTL. Failures are logged, not
// returned; a write that does not stick only costs a future repo query.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	data, err := cbor.Marshal(value)
	if err != nil {
		c.logger.Warn("cache entry encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// InvalidateEncounter drops the detail entry for one encounter plus every
// cached list, since any list may contain it.
func (c *Cache) InvalidateEncounter(ctx context.Context, encounterID string) {
	if err := c.store.Delete(ctx, DetailKey(encounterID)); err != nil {
		c.logger.Warn("cache invalidate failed", "encounter_id", encounterID, "error", err)
	}
	c.InvalidateLists(ctx)
}

// InvalidateLists drops every cached list entry.
func (c *Cache) InvalidateLists(ctx context.Context) {
	if err := c.store.DeleteByPrefix(ctx, listPrefix); err != nil {
		c.logger.Warn("cache list invalidation failed", "error", err)
	}
}
