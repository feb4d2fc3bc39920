// Package cache implements the tiered TTL cache with stale-on-failure
// serving described in the gateway design: keyed by (query_type, canonical
// params), TTL selected per type, janitor-swept rather than evicted.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/sherajdev/chattwelve/internal/store"
)

// Result is what Get returns on a hit. Stale is true when the caller asked
// for a stale read and the entry had already passed its TTL; CachedAt is the
// entry's original write time so callers can surface it.
type Result struct {
	Data     json.RawMessage
	Stale    bool
	CachedAt time.Time
}

// Cache wraps a Store with key derivation and TTL policy.
type Cache struct {
	store store.Store
	ttl   TTLConfig
}

// TTLConfig carries the per-type TTLs, tunable via configuration.
type TTLConfig struct {
	Price      int
	Quote      int
	Historical int
	Indicator  int
	Default    int
}

func New(s store.Store, ttl TTLConfig) *Cache {
	if ttl.Default == 0 {
		ttl.Default = 45
	}
	return &Cache{store: s, ttl: ttl}
}

func (c *Cache) ttlFor(queryType string) int {
	switch queryType {
	case "price":
		return orDefault(c.ttl.Price, 45)
	case "quote":
		return orDefault(c.ttl.Quote, 45)
	case "historical":
		return orDefault(c.ttl.Historical, 300)
	case "indicator":
		return orDefault(c.ttl.Indicator, 300)
	default:
		return orDefault(c.ttl.Default, 45)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Key derives the deterministic cache key for (queryType, params).
func Key(queryType string, params map[string]any) string {
	canon := canonicalJSON(params)
	sum := sha256.Sum256([]byte(queryType + ":" + canon))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON serializes params with keys sorted lexicographically so that
// equal params always produce the same byte string (and hence the same key).
func canonicalJSON(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(params[k])
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return string(buf)
}

// Get looks up (queryType, params). allowStale controls whether a
// past-TTL row is returned (marked stale) or treated as a miss.
func (c *Cache) Get(ctx context.Context, queryType string, params map[string]any, allowStale bool) (*Result, error) {
	key := Key(queryType, params)
	entry, err := c.store.GetCacheEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	fresh := time.Now().Before(entry.CreatedAt.Add(time.Duration(entry.TTLSeconds) * time.Second))
	if !fresh && !allowStale {
		return nil, nil
	}
	return &Result{
		Data:     json.RawMessage(entry.ResponseData),
		Stale:    !fresh,
		CachedAt: entry.CreatedAt,
	}, nil
}

// Set upserts (queryType, params) -> value, using the type's TTL.
func (c *Cache) Set(ctx context.Context, queryType string, params map[string]any, value any) (string, error) {
	key := Key(queryType, params)
	payload, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	entry := &store.CacheEntry{
		Key:          key,
		QueryType:    queryType,
		ResponseData: payload,
		CreatedAt:    time.Now().UTC(),
		TTLSeconds:   c.ttlFor(queryType),
	}
	if err := c.store.PutCacheEntry(ctx, entry); err != nil {
		return "", err
	}
	return key, nil
}

// Invalidate removes the entry for (queryType, params), if any.
func (c *Cache) Invalidate(ctx context.Context, queryType string, params map[string]any) (bool, error) {
	return c.store.DeleteCacheEntry(ctx, Key(queryType, params))
}

// ClearAll empties the cache table and returns the number of rows removed.
func (c *Cache) ClearAll(ctx context.Context) (int64, error) {
	return c.store.ClearCache(ctx)
}

// Stats reports aggregate counts for the diagnostic surface.
func (c *Cache) Stats(ctx context.Context) (store.CacheStats, error) {
	return c.store.CacheStats(ctx, time.Now().UTC())
}

// SweepExpired deletes rows whose own TTL has elapsed. Intended to be called
// by the janitor on CACHE_CLEANUP_INTERVAL_MINUTES, not by request handlers.
func (c *Cache) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.store.DeleteExpiredCacheEntries(ctx, now)
}
