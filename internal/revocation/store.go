// Package revocation keeps the blocklist of revoked token ids in Redis.
// Entries expire on their own once the revoked token could no longer pass
// signature and expiry checks anyway.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when Redis cannot be reached. Callers that
// guard access must treat it as "not authorised".
var ErrUnavailable = errors.New("revocation store unavailable")

// Store is a Redis-backed blocklist keyed by jti.
type Store struct {
	rdb       redis.Cmdable
	prefix    string
	opTimeout time.Duration
}

// NewStore builds a Store. An empty prefix defaults to "revoked"; a zero
// opTimeout disables the per-command deadline.
func NewStore(rdb redis.Cmdable, prefix string, opTimeout time.Duration) *Store {
	if prefix == "" {
		prefix = "revoked"
	}
	return &Store{rdb: rdb, prefix: prefix, opTimeout: opTimeout}
}

func (s *Store) key(jti string) string { return s.prefix + ":" + jti }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Add blocklists jti for ttl. Adding the same jti twice is harmless; the
// later call only refreshes the expiry.
func (s *Store) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("revocation ttl must be positive, got %s", ttl)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.rdb.Set(ctx, s.key(jti), "", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Contains reports whether jti has been revoked.
func (s *Store) Contains(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.rdb.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
