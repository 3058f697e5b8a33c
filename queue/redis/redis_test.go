package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/flowexec/queue"
)

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

func TestRedisQueue(t *testing.T) {
	client := skipIfNoRedis(t)
	ctx := context.Background()
	q := NewQueue(client, "flowexec:test:"+uuid.NewString()+":")
	defer client.Del(ctx, q.key)

	task, err := q.Dequeue(ctx, 0)
	assert.Nil(t, err)
	assert.Nil(t, task)

	assert.Nil(t, q.Enqueue(ctx, &queue.Task{RunID: "r1"}))
	assert.Nil(t, q.Enqueue(ctx, &queue.Task{RunID: "r2"}))
	assert.Equal(t, 2, q.Len())

	task, err = q.Dequeue(ctx, 0)
	assert.Nil(t, err)
	assert.Equal(t, "r1", task.RunID)

	task, err = q.Dequeue(ctx, time.Second)
	assert.Nil(t, err)
	assert.Equal(t, "r2", task.RunID)

	task, err = q.Dequeue(ctx, time.Second)
	assert.Nil(t, err)
	assert.Nil(t, task)
}
