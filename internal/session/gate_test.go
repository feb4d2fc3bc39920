package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sherajdev/chattwelve/internal/store"
)

func newTestGate(t *testing.T, timeout, window time.Duration, limit int) (*Gate, store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, timeout, window, limit), s
}

func TestValidID(t *testing.T) {
	if ValidID("") {
		t.Fatal("empty id should be invalid")
	}
	if ValidID(strings.Repeat("a", 65)) {
		t.Fatal("65-char id should be invalid")
	}
	if !ValidID(strings.Repeat("a", 64)) {
		t.Fatal("64-char id should be valid")
	}
	if !ValidID("abc-DEF_123") {
		t.Fatal("expected valid id shape")
	}
	if ValidID("has a space") {
		t.Fatal("id with space should be invalid")
	}
}

func TestGetBadID(t *testing.T) {
	g, _ := newTestGate(t, time.Hour, time.Minute, 10)
	_, err := g.Get(context.Background(), "bad id!")
	if !errors.Is(err, ErrBadID) {
		t.Fatalf("got %v, want ErrBadID", err)
	}
}

func TestGetNotFound(t *testing.T) {
	g, _ := newTestGate(t, time.Hour, time.Minute, 10)
	_, err := g.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestGetExpiredAtExactBoundary(t *testing.T) {
	g, s := newTestGate(t, time.Hour, time.Minute, 10)
	ctx := context.Background()
	now := time.Now().UTC()
	sess := &store.Session{
		ID: "sess-1", CreatedAt: now.Add(-2 * time.Hour), LastActivity: now.Add(-time.Hour),
		RequestWindowStart: now, Metadata: map[string]string{},
	}
	if err := s.PutSession(ctx, sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	_, err := g.Get(ctx, "sess-1")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired at exact timeout boundary", err)
	}
}

func TestConsumeQuotaWithinLimit(t *testing.T) {
	g, _ := newTestGate(t, time.Hour, time.Minute, 3)
	ctx := context.Background()
	sess, err := g.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 1; i <= 3; i++ {
		res, err := g.ConsumeQuota(ctx, sess.ID)
		if err != nil {
			t.Fatalf("ConsumeQuota: %v", err)
		}
		if res.Count != i {
			t.Fatalf("call %d: got count %d, want %d", i, res.Count, i)
		}
		if res.Limited {
			t.Fatalf("call %d: should not be limited at count %d with limit 3", i, res.Count)
		}
	}
}

func TestConsumeQuotaExceedsLimit(t *testing.T) {
	g, _ := newTestGate(t, time.Hour, time.Minute, 3)
	ctx := context.Background()
	sess, err := g.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := g.ConsumeQuota(ctx, sess.ID); err != nil {
			t.Fatalf("ConsumeQuota: %v", err)
		}
	}
	res, err := g.ConsumeQuota(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ConsumeQuota: %v", err)
	}
	if res.Count != 4 || !res.Limited {
		t.Fatalf("got count=%d limited=%v, want count=4 limited=true", res.Count, res.Limited)
	}
}

func TestConsumeQuotaWindowReset(t *testing.T) {
	g, s := newTestGate(t, time.Hour, time.Minute, 1)
	ctx := context.Background()
	sess, err := g.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := g.ConsumeQuota(ctx, sess.ID); err != nil {
		t.Fatalf("ConsumeQuota: %v", err)
	}
	res, err := g.ConsumeQuota(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ConsumeQuota: %v", err)
	}
	if !res.Limited {
		t.Fatal("expected second immediate call within window to be limited")
	}

	_, err = s.UpdateSessionFields(ctx, sess.ID, func(sv *store.Session) error {
		sv.RequestWindowStart = time.Now().UTC().Add(-time.Hour)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSessionFields: %v", err)
	}

	res, err = g.ConsumeQuota(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ConsumeQuota: %v", err)
	}
	if res.Count != 1 || res.Limited {
		t.Fatalf("expected window reset to count=1 limited=false, got count=%d limited=%v", res.Count, res.Limited)
	}
}

func TestAppendContextTruncatesToTen(t *testing.T) {
	g, _ := newTestGate(t, time.Hour, time.Minute, 10)
	ctx := context.Background()
	sess, err := g.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 12; i++ {
		entry := store.TurnContext{Query: "q", Intent: "price", Timestamp: time.Now().UTC()}
		if err := g.AppendContext(ctx, sess.ID, entry); err != nil {
			t.Fatalf("AppendContext %d: %v", i, err)
		}
	}

	got, err := g.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Context) != 10 {
		t.Fatalf("got %d context entries, want 10", len(got.Context))
	}
}
