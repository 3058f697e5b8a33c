package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// skipIfNoRedis skips the test unless REDIS_ADDR points at a reachable server
func skipIfNoRedis(t *testing.T) goredis.UniversalClient {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLocker(t *testing.T) {
	client := skipIfNoRedis(t)
	ctx := context.Background()

	l, err := NewLocker(client, "flowexec:test:", time.Minute)
	assert.Nil(t, err)
	key := "mutex:FlowExecutor:" + uuid.NewString()

	ok, err := l.MutexLock(ctx, key, "a")
	assert.Nil(t, err)
	assert.True(t, ok)

	ok, err = l.MutexLock(ctx, key, "b")
	assert.Nil(t, err)
	assert.False(t, ok)

	ok, err = l.MutexLock(ctx, key, "a")
	assert.Nil(t, err)
	assert.False(t, ok)

	ok, err = l.Renew(ctx, key, "a")
	assert.Nil(t, err)
	assert.True(t, ok)
	ok, err = l.Renew(ctx, key, "b")
	assert.Nil(t, err)
	assert.False(t, ok)

	assert.Nil(t, l.Release(ctx, key, "b"))
	ok, _ = l.MutexLock(ctx, key, "b")
	assert.False(t, ok)

	assert.Nil(t, l.Release(ctx, key, "a"))
	ok, err = l.SpinLock(ctx, key, "b", time.Second)
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Nil(t, l.Release(ctx, key, "b"))
}

func TestNewLockerInvalidTTL(t *testing.T) {
	_, err := NewLocker(nil, "", 0)
	assert.NotNil(t, err)
}
