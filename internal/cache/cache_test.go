package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sherajdev/chattwelve/internal/store"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, TTLConfig{Price: 45, Quote: 45, Historical: 300, Indicator: 300})
}

func TestKeyDeterminism(t *testing.T) {
	p1 := map[string]any{"symbol": "AAPL", "interval": "1day"}
	p2 := map[string]any{"interval": "1day", "symbol": "AAPL"}
	if Key("historical", p1) != Key("historical", p2) {
		t.Fatal("expected equal canonical params to produce equal keys regardless of map iteration order")
	}
	if Key("historical", p1) == Key("price", p1) {
		t.Fatal("expected different query types to produce different keys")
	}
}

func TestSetThenGetFreshHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	params := map[string]any{"symbol": "AAPL"}

	if _, err := c.Set(ctx, "price", params, map[string]any{"price": 190.5}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	res, err := c.Get(ctx, "price", params, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res == nil {
		t.Fatal("expected fresh hit, got miss")
	}
	if res.Stale {
		t.Fatal("expected fresh, got stale")
	}
}

func TestGetMissWhenAbsent(t *testing.T) {
	c := newTestCache(t)
	res, err := c.Get(context.Background(), "price", map[string]any{"symbol": "NONE"}, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res != nil {
		t.Fatalf("expected miss, got %+v", res)
	}
}

func TestStaleRequiresAllowStale(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("price", map[string]any{"symbol": "AAPL"})
	old := time.Now().UTC().Add(-time.Hour)
	if err := c.store.PutCacheEntry(ctx, &store.CacheEntry{
		Key: key, QueryType: "price", ResponseData: []byte(`{"price":1}`), CreatedAt: old, TTLSeconds: 45,
	}); err != nil {
		t.Fatalf("PutCacheEntry: %v", err)
	}

	params := map[string]any{"symbol": "AAPL"}
	if res, err := c.Get(ctx, "price", params, false); err != nil || res != nil {
		t.Fatalf("expected miss without allow_stale, got res=%+v err=%v", res, err)
	}

	res, err := c.Get(ctx, "price", params, true)
	if err != nil {
		t.Fatalf("Get with allow_stale: %v", err)
	}
	if res == nil || !res.Stale {
		t.Fatalf("expected stale hit, got %+v", res)
	}
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	params := map[string]any{"symbol": "AAPL"}
	if _, err := c.Set(ctx, "price", params, map[string]any{"price": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	deleted, err := c.Invalidate(ctx, "price", params)
	if err != nil || !deleted {
		t.Fatalf("Invalidate: deleted=%v err=%v", deleted, err)
	}
	res, err := c.Get(ctx, "price", params, true)
	if err != nil || res != nil {
		t.Fatalf("expected miss after invalidate, got res=%+v err=%v", res, err)
	}
}

func TestSweepExpired(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)
	c.store.PutCacheEntry(ctx, &store.CacheEntry{Key: "expired", QueryType: "price", ResponseData: []byte("1"), CreatedAt: old, TTLSeconds: 45})

	n, err := c.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d swept, want 1", n)
	}
}
