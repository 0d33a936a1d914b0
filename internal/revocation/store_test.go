package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "revoked", time.Second), mr
}

func TestStore_AddContains(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "abc")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Add(ctx, "abc", time.Minute))
	ok, err = s.Contains(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, mr.Exists("revoked:abc"))
	require.Equal(t, time.Minute, mr.TTL("revoked:abc"))
}

func TestStore_AddIsIdempotent(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "abc", time.Minute))
	require.NoError(t, s.Add(ctx, "abc", time.Minute))
	require.Len(t, mr.Keys(), 1)
}

func TestStore_EntryExpires(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "abc", time.Minute))
	mr.FastForward(time.Minute + time.Second)

	ok, err := s.Contains(ctx, "abc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_RejectsNonPositiveTTL(t *testing.T) {
	s, _ := newStore(t)
	require.Error(t, s.Add(context.Background(), "abc", 0))
}

func TestStore_Unavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	_, err := s.Contains(context.Background(), "abc")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, s.Add(context.Background(), "abc", time.Minute), ErrUnavailable)
}
