//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/testsupport"
)

// TestRedisStore_Integration checks the L2 tier against a real Redis: the
// key layout, JSON encoding and handling of corrupted values.
func TestRedisStore_Integration(t *testing.T) {
	ctx := context.Background()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	store := redisCtr.Store

	// Spy client for side-channel inspection and corruption.
	endpoint, err := redisCtr.Container.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)
	spy := redis.NewClient(&redis.Options{Addr: endpoint})
	defer spy.Close()

	t.Run("Should report a missing key without error", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "absent:V")

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should round trip an entry under the namespace", func(t *testing.T) {
		// Arrange
		date := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

		// Act
		err := store.Set(ctx, "cuisine:V", cache.Entry{Date: date, Results: []string{"pizza", "burger"}})

		// Assert
		require.NoError(t, err)
		raw, err := spy.Get(ctx, "mimir:taginfo:cuisine:V").Result()
		require.NoError(t, err)
		assert.JSONEq(t, `{"date":"2026-02-03T04:05:06Z","results":["pizza","burger"]}`, raw)

		got, ok, err := store.Get(ctx, "cuisine:V")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, date.Equal(got.Date))
		assert.Equal(t, []string{"pizza", "burger"}, got.Results)
	})

	t.Run("Should surface corrupted values as errors", func(t *testing.T) {
		require.NoError(t, spy.Set(ctx, "mimir:taginfo:broken:V", "not-json", 0).Err())

		_, ok, err := store.Get(ctx, "broken:V")

		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("Should ping the server from the health checker", func(t *testing.T) {
		checker := cache.NewHealthChecker(redisCtr.Client)

		assert.Equal(t, "redis", checker.Name())
		assert.NoError(t, checker.Check(ctx))
	})
}
