package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLock_Exclusive(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	key := "uplinkpolicy:test:lock:" + t.Name()
	client.Del(ctx, key)

	first := NewLock(client, key, 2*time.Second)
	second := NewLock(client, key, 2*time.Second)

	require.NoError(t, first.Acquire(ctx, time.Second))

	ok, err := second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	err = second.Acquire(ctx, 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.ErrorIs(t, second.Release(ctx), ErrLockNotHeld)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, second.Acquire(ctx, time.Second))
	require.NoError(t, second.Release(ctx))
}
