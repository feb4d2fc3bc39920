package store

import (
	"context"
	"time"
)

// Store is the persistence interface for the gateway: a keyed row store for
// sessions and a keyed row store for cache entries. Implementations MUST
// serialize concurrent writes to a single row (see UpdateSessionFields).
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// Sessions
	GetSession(ctx context.Context, id string) (*Session, error)
	PutSession(ctx context.Context, s *Session) error
	UpdateSessionFields(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*Session, error)
	CountSessionsLastActivityBefore(ctx context.Context, t time.Time) (int, error)
	DeleteSessionsLastActivityBefore(ctx context.Context, t time.Time) (int64, error)

	// Cache
	GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error)
	PutCacheEntry(ctx context.Context, e *CacheEntry) error
	DeleteCacheEntry(ctx context.Context, key string) (bool, error)
	ClearCache(ctx context.Context) (int64, error)
	CountCacheEntriesCreatedBefore(ctx context.Context, t time.Time) (int, error)
	DeleteCacheEntriesCreatedBefore(ctx context.Context, t time.Time) (int64, error)
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)
	CacheStats(ctx context.Context, now time.Time) (CacheStats, error)
}

// TurnContext is one successful interpreted query recorded against a session.
type TurnContext struct {
	Query     string    `json:"query"`
	Symbols   []string  `json:"symbols"`
	Intent    string    `json:"intent"`
	Indicator string    `json:"indicator,omitempty"`
	Interval  string    `json:"interval,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the persisted row backing the Session Gate.
type Session struct {
	ID                 string
	UserID             string
	CreatedAt          time.Time
	LastActivity       time.Time
	Context            []TurnContext
	RequestCount       int
	RequestWindowStart time.Time
	Metadata           map[string]string
}

// CacheEntry is the persisted row backing the Cache Layer.
type CacheEntry struct {
	Key          string
	QueryType    string
	ResponseData []byte // opaque canonical-JSON payload
	CreatedAt    time.Time
	TTLSeconds   int
}

// CacheStats summarizes the cache table for diagnostics.
type CacheStats struct {
	Total  int            `json:"total"`
	Active int            `json:"active"`
	Stale  int            `json:"expired"`
	ByType map[string]int `json:"by_type"`
}

// ErrRowLocked reports a session row held by a concurrent updater.
// SQLiteStore.UpdateSessionFields never returns it: its single connection
// makes concurrent updaters wait their turn instead of failing.
type ErrRowLocked struct{ ID string }

func (e *ErrRowLocked) Error() string { return "session row locked: " + e.ID }
