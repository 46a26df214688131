package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("live test, set REDIS_URL to run against a redis server")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	l := NewRedisLocker(rdb, "memebot-test-"+uuid.NewString(), Options{TTL: 300 * time.Millisecond, Retries: 0})

	a, err := l.Acquire(ctx, "p")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "p")
	assert.ErrorIs(t, err, ErrNotAcquired)

	// lease lapses on its own
	time.Sleep(400 * time.Millisecond)
	b, err := l.Acquire(ctx, "p")
	require.NoError(t, err)

	// the stale holder cannot free the new lease
	assert.NoError(t, a.Release(ctx))
	_, err = l.Acquire(ctx, "p")
	assert.ErrorIs(t, err, ErrNotAcquired)

	assert.NoError(t, b.Release(ctx))
	c, err := l.Acquire(ctx, "p")
	require.NoError(t, err)
	assert.NoError(t, c.Release(ctx))
}
