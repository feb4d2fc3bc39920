package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore implements Store using an embedded SQLite database. Opening it
// with a single connection turns every transaction into a natural mutual
// exclusion point, which is how UpdateSessionFields gets its row-level
// exclusion without a separate in-process lock table.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a SQLiteStore and initializes the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

const sessionCols = `id, user_id, created_at, last_activity, context_json,
	request_count, request_window_start, metadata_json`

func scanSession(scanner interface{ Scan(...any) error }) (*Session, error) {
	var (
		id, contextJSON, metadataJSON string
		userID                        sql.NullString
		createdAt, lastActivity       int64
		requestCount                  int
		windowStart                   int64
	)
	err := scanner.Scan(&id, &userID, &createdAt, &lastActivity, &contextJSON,
		&requestCount, &windowStart, &metadataJSON)
	if err != nil {
		return nil, err
	}

	var ctxEntries []TurnContext
	if err := json.Unmarshal([]byte(contextJSON), &ctxEntries); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	return &Session{
		ID:                 id,
		UserID:             userID.String,
		CreatedAt:          time.Unix(createdAt, 0).UTC(),
		LastActivity:       time.Unix(lastActivity, 0).UTC(),
		Context:            ctxEntries,
		RequestCount:       requestCount,
		RequestWindowStart: time.Unix(windowStart, 0).UTC(),
		Metadata:           metadata,
	}, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionCols+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

func (s *SQLiteStore) PutSession(ctx context.Context, sess *Session) error {
	ctxJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(sess.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, created_at, last_activity, context_json,
			request_count, request_window_start, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			created_at = excluded.created_at,
			last_activity = excluded.last_activity,
			context_json = excluded.context_json,
			request_count = excluded.request_count,
			request_window_start = excluded.request_window_start,
			metadata_json = excluded.metadata_json`,
		sess.ID, nullableString(sess.UserID), sess.CreatedAt.Unix(), sess.LastActivity.Unix(),
		string(ctxJSON), sess.RequestCount, sess.RequestWindowStart.Unix(), string(metaJSON))
	return err
}

// UpdateSessionFields performs a transactional read-modify-write on a single
// session row: the callback receives the current row and mutates it in
// place. The transaction begins and commits on the store's single connection,
// so concurrent callers serialize naturally — this is what makes
// consume_quota and append_context safe under concurrency.
func (s *SQLiteStore) UpdateSessionFields(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+sessionCols+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := fn(sess); err != nil {
		return nil, err
	}

	ctxJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(sess.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET user_id = ?, last_activity = ?, context_json = ?,
			request_count = ?, request_window_start = ?, metadata_json = ?
		WHERE id = ?`,
		nullableString(sess.UserID), sess.LastActivity.Unix(), string(ctxJSON),
		sess.RequestCount, sess.RequestWindowStart.Unix(), string(metaJSON), id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionCols+" FROM sessions WHERE user_id = ? ORDER BY last_activity DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountSessionsLastActivityBefore(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE last_activity < ?", t.Unix()).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteSessionsLastActivityBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE last_activity < ?", t.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT key, query_type, response_data, created_at, ttl_seconds FROM cache_entries WHERE key = ?", key)
	e := &CacheEntry{}
	var createdAt int64
	err := row.Scan(&e.Key, &e.QueryType, &e.ResponseData, &createdAt, &e.TTLSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return e, nil
}

func (s *SQLiteStore) PutCacheEntry(ctx context.Context, e *CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, query_type, response_data, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			query_type = excluded.query_type,
			response_data = excluded.response_data,
			created_at = excluded.created_at,
			ttl_seconds = excluded.ttl_seconds`,
		e.Key, e.QueryType, e.ResponseData, e.CreatedAt.Unix(), e.TTLSeconds)
	return err
}

func (s *SQLiteStore) DeleteCacheEntry(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CountCacheEntriesCreatedBefore(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries WHERE created_at < ?", t.Unix()).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteCacheEntriesCreatedBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE created_at < ?", t.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredCacheEntries removes rows whose own TTL has elapsed as of now,
// regardless of how that TTL compares to other rows' TTLs.
func (s *SQLiteStore) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE created_at + ttl_seconds <= ?", now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CacheStats(ctx context.Context, now time.Time) (CacheStats, error) {
	stats := CacheStats{ByType: make(map[string]int)}
	rows, err := s.db.QueryContext(ctx, "SELECT query_type, created_at, ttl_seconds FROM cache_entries")
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var qType string
		var createdAt int64
		var ttl int
		if err := rows.Scan(&qType, &createdAt, &ttl); err != nil {
			return stats, err
		}
		stats.Total++
		stats.ByType[qType]++
		if now.Unix() < createdAt+int64(ttl) {
			stats.Active++
		} else {
			stats.Stale++
		}
	}
	return stats, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
