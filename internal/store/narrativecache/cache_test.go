// internal/store/narrativecache/cache_test.go
package narrativecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdiag-pipeline/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func setupCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewCache(client, ttl, logger.NewTestLogger(t)), mr
}

// ==========================
// Core Functionality Tests
// ==========================

func TestCache_MissThenHit(t *testing.T) {
	cache, _ := setupCache(t, time.Hour)
	ctx := context.Background()

	key := "alpha:deadbeef"

	_, found, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.False(t, found)

	err = cache.Set(ctx, key, "The team reports strong engagement.")
	assert.NoError(t, err)

	text, found, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "The team reports strong engagement.", text)
}

func TestCache_EntriesExpire(t *testing.T) {
	cache, mr := setupCache(t, time.Minute)
	ctx := context.Background()

	err := cache.Set(ctx, "beta:cafe", "Narrative text.")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, found, err := cache.Get(ctx, "beta:cafe")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestCache_KeysArePrefixed(t *testing.T) {
	cache, mr := setupCache(t, time.Hour)
	ctx := context.Background()

	err := cache.Set(ctx, "gamma:beef", "Prefixed entry.")
	require.NoError(t, err)

	raw, err := mr.Get("narrative:gamma:beef")
	assert.NoError(t, err)
	assert.Equal(t, "Prefixed entry.", raw)
}

func TestCache_ZeroTTLFallsBackToDefault(t *testing.T) {
	cache, _ := setupCache(t, 0)

	assert.Equal(t, defaultTTL, cache.TTL())
}

// ==========================
// Transport Error Tests
// ==========================

func TestCache_GetTransportError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewCache(client, time.Hour, logger.NewTestLogger(t))

	mock.ExpectGet("narrative:delta:f00d").SetErr(errors.New("connection reset"))

	_, found, err := cache.Get(context.Background(), "delta:f00d")

	assert.Error(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_SetTransportError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewCache(client, time.Hour, logger.NewTestLogger(t))

	mock.ExpectSet("narrative:delta:f00d", "text", time.Hour).
		SetErr(errors.New("connection reset"))

	err := cache.Set(context.Background(), "delta:f00d", "text")

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_MissIsNotAnError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewCache(client, time.Hour, logger.NewTestLogger(t))

	mock.ExpectGet("narrative:echo:beef").RedisNil()

	_, found, err := cache.Get(context.Background(), "echo:beef")

	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
