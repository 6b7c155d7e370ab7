package redis_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/store"
	"github.com/authgate/authgate/store/redis"
)

func newTestStore(t *testing.T) *redis.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
}

func TestUserLifecycle(t *testing.T) {
	ctx := t.Context()
	s := newTestStore(t)

	ok, err := s.HasUser(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreateUser(ctx, "dave", "hash-1", true))

	ok, err = s.HasUser(ctx, "dave")
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := s.GetUser(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, "dave", u.Username)
	assert.Equal(t, "hash-1", u.PasswordHash)
	assert.True(t, u.IsAdmin)
	assert.False(t, u.CreatedAt.IsZero())

	require.NoError(t, s.UpdateUser(ctx, "dave", "hash-2", false))
	u, err = s.GetUser(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", u.PasswordHash)
	assert.False(t, u.IsAdmin)
}

func TestMissingUser(t *testing.T) {
	ctx := t.Context()
	s := newTestStore(t)

	_, err := s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateUser(ctx, "nobody", "hash", true), store.ErrNotFound)
}
