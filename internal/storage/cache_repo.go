package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orgdash/internal/cache"

	"github.com/jackc/pgx/v5"
)

var _ cache.Store = (*CacheRepo)(nil)

// CacheRepo implements cache.Store on the cache_entries table. Expired rows
// are treated as absent and removed by Sweep.
type CacheRepo struct {
	db *DB
}

func NewCacheRepo(db *DB) *CacheRepo {
	return &CacheRepo{db: db}
}

func (r *CacheRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT value FROM cache_entries
WHERE key=$1 AND (expires_at IS NULL OR expires_at > NOW())`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cache entry %s: %w", key, err)
	}
	return value, true, nil
}

func (r *CacheRepo) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO cache_entries (key, value, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt(ttl))
	if err != nil {
		return fmt.Errorf("put cache entry %s: %w", key, err)
	}
	return nil
}

func (r *CacheRepo) Forget(ctx context.Context, key string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE key=$1`, key); err != nil {
		return fmt.Errorf("forget cache entry %s: %w", key, err)
	}
	return nil
}

func (r *CacheRepo) AddIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var stored string
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO cache_entries (key, value, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
WHERE cache_entries.expires_at IS NOT NULL AND cache_entries.expires_at <= NOW()
RETURNING key`, key, value, expiresAt(ttl)).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("add cache entry %s: %w", key, err)
	}
	return true, nil
}

func (r *CacheRepo) ForgetIfValue(ctx context.Context, key string, value []byte) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
DELETE FROM cache_entries
WHERE key=$1 AND value=$2 AND (expires_at IS NULL OR expires_at > NOW())`, key, value)
	if err != nil {
		return false, fmt.Errorf("forget cache entry %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Sweep deletes expired rows and returns how many were removed.
func (r *CacheRepo) Sweep(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("sweep cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}
