// Package session implements the Session Gate: session lookup, expiry, and
// the sliding-window rate counter, all backed by the persistent store.
package session

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/sherajdev/chattwelve/internal/store"
)

var idShapeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Sentinel errors returned by Get; callers map these to error-envelope codes.
var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
	ErrBadID    = errors.New("malformed session id")
)

// Gate wraps a Store with session lifecycle and rate-limit semantics.
type Gate struct {
	store             store.Store
	sessionTimeout    time.Duration
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

func New(s store.Store, sessionTimeout, rateLimitWindow time.Duration, rateLimitRequests int) *Gate {
	return &Gate{
		store:             s,
		sessionTimeout:    sessionTimeout,
		rateLimitRequests: rateLimitRequests,
		rateLimitWindow:   rateLimitWindow,
	}
}

// ValidID reports whether id has the required shape: 1-64 chars of
// [A-Za-z0-9_-]. Checked before the gate ever touches the store.
func ValidID(id string) bool {
	return idShapeRe.MatchString(id)
}

// Create allocates a fresh session and persists it.
func (g *Gate) Create(ctx context.Context, userID string, metadata map[string]string) (*store.Session, error) {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]string{}
	}
	sess := &store.Session{
		ID:                 uuid.NewString(),
		UserID:             userID,
		CreatedAt:          now,
		LastActivity:       now,
		Context:            nil,
		RequestCount:       0,
		RequestWindowStart: now,
		Metadata:           metadata,
	}
	if err := g.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ExpiresAt derives the expiry timestamp for a session.
func (g *Gate) ExpiresAt(sess *store.Session) time.Time {
	return sess.LastActivity.Add(g.sessionTimeout)
}

func (g *Gate) isExpired(sess *store.Session, now time.Time) bool {
	return now.Sub(sess.LastActivity) >= g.sessionTimeout
}

// Get reads a session, surfacing ErrNotFound / ErrExpired / ErrBadID as
// sentinel errors rather than deleting anything — the janitor owns deletion.
func (g *Gate) Get(ctx context.Context, id string) (*store.Session, error) {
	if !ValidID(id) {
		return nil, ErrBadID
	}
	sess, err := g.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	if g.isExpired(sess, time.Now().UTC()) {
		return nil, ErrExpired
	}
	return sess, nil
}

// Touch bumps last_activity to now.
func (g *Gate) Touch(ctx context.Context, id string) error {
	_, err := g.store.UpdateSessionFields(ctx, id, func(s *store.Session) error {
		s.LastActivity = time.Now().UTC()
		return nil
	})
	return err
}

// Delete removes a session, reporting whether a row was actually present.
func (g *Gate) Delete(ctx context.Context, id string) (bool, error) {
	return g.store.DeleteSession(ctx, id)
}

// QuotaResult is consume_quota's return value.
type QuotaResult struct {
	Count             int
	SecondsUntilReset int
	Limited           bool
}

// ConsumeQuota performs the atomic sliding-window increment: the quota is
// always consumed (even for requests that turn out malformed), and the
// caller decides whether count exceeds the limit.
func (g *Gate) ConsumeQuota(ctx context.Context, id string) (*QuotaResult, error) {
	now := time.Now().UTC()
	sess, err := g.store.UpdateSessionFields(ctx, id, func(s *store.Session) error {
		if now.Sub(s.RequestWindowStart) >= g.rateLimitWindow {
			s.RequestCount = 1
			s.RequestWindowStart = now
		} else {
			s.RequestCount++
		}
		s.LastActivity = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}

	remaining := g.rateLimitWindow - now.Sub(sess.RequestWindowStart)
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaResult{
		Count:             sess.RequestCount,
		SecondsUntilReset: int(remaining.Seconds()),
		Limited:           sess.RequestCount > g.rateLimitRequests,
	}, nil
}

// AppendContext records one successful interpreted turn, truncating to the
// most recent 10 entries (old[-9:] ++ current).
func (g *Gate) AppendContext(ctx context.Context, id string, entry store.TurnContext) error {
	_, err := g.store.UpdateSessionFields(ctx, id, func(s *store.Session) error {
		entries := s.Context
		if len(entries) >= 10 {
			entries = entries[len(entries)-9:]
		}
		s.Context = append(entries, entry)
		s.LastActivity = time.Now().UTC()
		return nil
	})
	return err
}
