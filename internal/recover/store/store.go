// Package store defines the TTL key-value contract backing the rate limiter
// and the nonce store. Concrete drivers (memory, sqlite) implement it.
//
// Every key's lifetime is wholly determined by the store's own TTL
// semantics; callers never coordinate through in-process locks. Incr must be
// atomic against concurrent callers sharing the store.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing or expired key.
var ErrNotFound = errors.New("store: not found")

// KV is the ephemeral store contract. Semantics follow the usual
// counter-with-expiry primitives:
//
//   - Get returns ErrNotFound for absent and expired keys alike.
//   - Set with ttl > 0 bounds the key's lifetime; ttl == 0 means no expiry.
//   - Incr atomically increments an integer value, creating it at 1. An
//     expired key restarts at 1.
//   - Expire (re)sets the TTL of an existing key; a missing key is a no-op.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// DeleteExpired removes lapsed keys (housekeeping).
	DeleteExpired(ctx context.Context) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
