package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is a key/value cache with per-entry expiry. A ttl of zero means the
// entry does not expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
	// AddIfAbsent stores value only when key is missing or expired and
	// reports whether it did. It is the only atomic primitive of the store.
	AddIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// ForgetIfValue removes key only while it still holds value.
	ForgetIfValue(ctx context.Context, key string, value []byte) (bool, error)
}

func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, ok, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return out, true, nil
}

func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return s.Put(ctx, key, raw, ttl)
}
