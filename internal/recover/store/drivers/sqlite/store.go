// Package sqlite provides a SQLite-backed KV driver so nonce and rate-limit
// state survives a single-node restart. Expiry is enforced in every query;
// lapsed rows are swept by the housekeeping service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/varden/recover/internal/recover/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ store.KV = (*Store)(nil)

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Concurrent Incr calls from parallel request handlers serialize on the
	// database, not in this process.
	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv
		WHERE key = ?1 AND (expires_at IS NULL OR expires_at > ?2)`,
		key, time.Now().UTC(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?1, ?2, ?3)
		ON CONFLICT(key) DO UPDATE SET value = ?2, expires_at = ?3`,
		key, value, expiresAt,
	)
	return err
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	now := time.Now().UTC()

	// Single statement so concurrent increments are atomic on the store
	// side. An expired row restarts the counter at 1 with no expiry, same
	// as a fresh key.
	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?1, '1', NULL)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE
				WHEN kv.expires_at IS NOT NULL AND kv.expires_at <= ?2 THEN '1'
				ELSE CAST(CAST(kv.value AS INTEGER) + 1 AS TEXT)
			END,
			expires_at = CASE
				WHEN kv.expires_at IS NOT NULL AND kv.expires_at <= ?2 THEN NULL
				ELSE kv.expires_at
			END
		RETURNING CAST(value AS INTEGER)`,
		key, now,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE kv SET expires_at = ?2 WHERE key = ?1`,
		key, expiresAt,
	)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?1`, key)
	return err
}

func (s *Store) DeleteExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?1`,
		time.Now().UTC(),
	)
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
