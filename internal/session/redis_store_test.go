package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintbase/api/internal/store"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreWithClient(client), mr
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, _ := newTestStore(t)
	ctx := context.Background()

	err := rs.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	user, err := rs.LookupRefreshSession(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", user.ID)
}

func TestLookupUnknownTokenIsNotFound(t *testing.T) {
	rs, _ := newTestStore(t)

	_, err := rs.LookupRefreshSession(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, rs.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Hour)))
	require.NoError(t, rs.RevokeRefreshSession(ctx, "hash-1"))

	_, err := rs.LookupRefreshSession(ctx, "hash-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenExpiresWithTTL(t *testing.T) {
	rs, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, rs.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Minute)))

	mr.FastForward(2 * time.Minute)

	_, err := rs.LookupRefreshSession(ctx, "hash-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPing(t *testing.T) {
	rs, mr := newTestStore(t)
	assert.NoError(t, rs.Ping(context.Background()))

	mr.Close()
	assert.Error(t, rs.Ping(context.Background()))
}
