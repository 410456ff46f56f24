package locking

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL is not set; skipping integration test")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("redis is not reachable; skipping integration test")
	}
	return client
}

func TestRedisTenantLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	locker := NewRedisTenantLocker(newRedisClient(t))
	tenant := uuid.New()

	release, err := locker.Acquire(ctx, tenant, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, tenant, time.Minute)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	again, err := locker.Acquire(ctx, tenant, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
