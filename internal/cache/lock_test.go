package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisForTest(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNotificationLockAgainstRedis(t *testing.T) {
	ctx := context.Background()
	client := redisForTest(t)

	lock := NewNotificationLock(client, 2*time.Second)
	orderID := "RCH-LOCKTEST-" + time.Now().Format("150405.000000")

	token, ok, err := lock.Acquire(ctx, orderID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = lock.Acquire(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must wait for release")

	ttl, err := client.TTL(ctx, key(orderID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, lock.Release(ctx, orderID, token))
	token, ok, err = lock.Acquire(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, lock.Release(ctx, orderID, token))
}

func TestNotificationLockReleaseNeedsOwnerToken(t *testing.T) {
	ctx := context.Background()
	client := redisForTest(t)

	lock := NewNotificationLock(client, 2*time.Second)
	orderID := "RCH-OWNERTEST-" + time.Now().Format("150405.000000")

	token, ok, err := lock.Acquire(ctx, orderID)
	require.NoError(t, err)
	require.True(t, ok)

	// A worker whose lock already expired presents a stale token.
	require.NoError(t, lock.Release(ctx, orderID, "stale-token"))
	held, err := client.Get(ctx, key(orderID)).Result()
	require.NoError(t, err)
	assert.Equal(t, token, held)

	require.NoError(t, lock.Release(ctx, orderID, token))
	_, err = client.Get(ctx, key(orderID)).Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestNotificationLockReportsUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	lock := NewNotificationLock(client, time.Second)
	token, ok, err := lock.Acquire(context.Background(), "RCH-1")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.Contains(t, err.Error(), "RCH-1")
}
