package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrStateNotFound = errors.New("oauth state not found")
	ErrStateStore    = errors.New("oauth state store unavailable")
)

// StateStore keeps the anti-CSRF state of pending authorizations in Redis.
// A state can be consumed once.
type StateStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewStateStore(rdb redis.Cmdable) *StateStore {
	return &StateStore{rdb: rdb, prefix: "oauth:state:"}
}

// Put remembers that state was issued for provider.
func (s *StateStore) Put(ctx context.Context, state, provider string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.prefix+state, provider, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStore, err)
	}
	return nil
}

// Take returns the provider state was issued for and forgets it.
func (s *StateStore) Take(ctx context.Context, state string) (string, error) {
	provider, err := s.rdb.GetDel(ctx, s.prefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStateStore, err)
	}
	return provider, nil
}
