package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client, nil)
}

func TestRedisStore_SetGet(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "cache/filters/abc", []byte("rules"), 0))

	value, ok, err := s.Get(ctx, "cache/filters/abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("rules"), value)
}

func TestRedisStore_GetMissing(t *testing.T) {
	s := newTestRedisStore(t)

	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_TTL(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))
	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Hour)
}

func TestRedisStore_TTLNoExpiryIsMinusOne(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestRedisStore_TTLMissingIsNotFound(t *testing.T) {
	s := newTestRedisStore(t)

	_, err := s.TTL(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_Expire(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Expire(ctx, "k", time.Minute))

	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ttl > 0)
}

func TestRedisStore_ExpireMissingIsNotFound(t *testing.T) {
	s := newTestRedisStore(t)
	err := s.Expire(context.Background(), "missing", time.Minute)
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_Delete(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Exists(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	ok, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_ListPrefixOrdersLexically(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	for _, k := range []string{"snapshots/history/a/3", "snapshots/history/a/1", "snapshots/history/a/2", "other/key"} {
		require.NoError(t, s.Set(ctx, k, []byte("v"), 0))
	}

	keys, err := s.ListPrefix(ctx, "snapshots/history/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"snapshots/history/a/1",
		"snapshots/history/a/2",
		"snapshots/history/a/3",
	}, keys)
}

func TestRedisStore_PingAndHealthCheck(t *testing.T) {
	s := newTestRedisStore(t)
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestRedisStore_Flush(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Flush(ctx))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
