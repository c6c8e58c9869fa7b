package client

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ghostatlas/ghostatlas/internal/geo"
)

// Query cache freshness defaults.
const (
	DefaultListFreshness   = 2 * time.Minute
	DefaultDetailFreshness = 5 * time.Minute
)

// listKeyPrecision buckets search centers so GPS jitter between polls
// does not fragment the cache.
const listKeyPrecision = 6

// Query key prefixes.
const (
	listKeyPrefix   = "list:"
	detailKeyPrefix = "detail:"
)

type queryEntry struct {
	value     any
	fetchedAt time.Time
}

// QueryCache is a stale-while-revalidate cache for read queries. Fresh
// entries are served directly; stale entries are served immediately while
// a background refetch replaces them. Concurrent fetches for one key are
// coalesced into a single network call.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*queryEntry
	subs    map[string][]func()

	listFreshness   time.Duration
	detailFreshness time.Duration

	group singleflight.Group
	now   func() time.Time
}

// NewQueryCache creates a cache with the default freshness windows.
func NewQueryCache() *QueryCache {
	return &QueryCache{
		entries:         make(map[string]*queryEntry),
		subs:            make(map[string][]func()),
		listFreshness:   DefaultListFreshness,
		detailFreshness: DefaultDetailFreshness,
		now:             time.Now,
	}
}

// ListKey returns the cache key used for a nearby listing, for use with
// Subscribe.
func ListKey(params SearchParams) string {
	return listQueryKey(params)
}

// DetailKey returns the cache key used for an encounter detail, for use
// with Subscribe.
func DetailKey(encounterID string) string {
	return detailQueryKey(encounterID)
}

func listQueryKey(params SearchParams) string {
	cell := geo.EncodeGeohash(params.Latitude, params.Longitude, listKeyPrecision)
	return fmt.Sprintf("%s%s:%.0f:%d:%s", listKeyPrefix, cell, params.RadiusMeters, params.Limit, params.NextToken)
}

func detailQueryKey(encounterID string) string {
	return detailKeyPrefix + encounterID
}

// Subscribe registers fn to run whenever the entry for key is replaced or
// invalidated. Notification order is unspecified.
func (qc *QueryCache) Subscribe(key string, fn func()) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.subs[key] = append(qc.subs[key], fn)
}

func (qc *QueryCache) notify(key string) {
	qc.mu.Lock()
	fns := append([]func(){}, qc.subs[key]...)
	qc.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (qc *QueryCache) freshnessFor(key string) time.Duration {
	if strings.HasPrefix(key, detailKeyPrefix) {
		return qc.detailFreshness
	}
	return qc.listFreshness
}

// lookup returns the entry value and whether it exists and is fresh.
func (qc *QueryCache) lookup(key string) (any, bool, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	entry, ok := qc.entries[key]
	if !ok {
		return nil, false, false
	}
	fresh := qc.now().Sub(entry.fetchedAt) < qc.freshnessFor(key)
	return entry.value, true, fresh
}

func (qc *QueryCache) store(key string, value any) {
	qc.mu.Lock()
	qc.entries[key] = &queryEntry{value: value, fetchedAt: qc.now()}
	qc.mu.Unlock()
	qc.notify(key)
}

// InvalidateLists drops every cached listing.
func (qc *QueryCache) InvalidateLists() {
	qc.invalidatePrefix(listKeyPrefix)
}

// InvalidateEncounter drops the detail entry for one encounter and every
// listing that may contain it.
func (qc *QueryCache) InvalidateEncounter(encounterID string) {
	key := detailQueryKey(encounterID)
	qc.mu.Lock()
	_, existed := qc.entries[key]
	delete(qc.entries, key)
	qc.mu.Unlock()
	if existed {
		qc.notify(key)
	}
	qc.invalidatePrefix(listKeyPrefix)
}

func (qc *QueryCache) invalidatePrefix(prefix string) {
	qc.mu.Lock()
	var dropped []string
	for key := range qc.entries {
		if strings.HasPrefix(key, prefix) {
			delete(qc.entries, key)
			dropped = append(dropped, key)
		}
	}
	qc.mu.Unlock()
	for _, key := range dropped {
		qc.notify(key)
	}
}

// cachedFetch serves key from qc, coalescing concurrent fetches. A stale
// entry is returned immediately while a background refetch runs; its
// outcome is discarded on failure, leaving the stale entry in place.
func cachedFetch[T any](qc *QueryCache, key string, fetch func() (T, error)) (T, error) {
	value, ok, fresh := qc.lookup(key)
	if ok && fresh {
		return value.(T), nil
	}

	if ok {
		go func() {
			result, err, _ := qc.group.Do(key, func() (any, error) {
				return fetch()
			})
			if err == nil {
				qc.store(key, result.(T))
			}
		}()
		return value.(T), nil
	}

	result, err, _ := qc.group.Do(key, func() (any, error) {
		return fetch()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed := result.(T)
	qc.store(key, typed)
	return typed, nil
}
