// Package redis is a Queue on a single Redis list, so deferred executions
// can be consumed by any engine sharing the Redis.
package redis

import (
	"context"
	"time"

	"github.com/juju/errors"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowexec/queue"
)

var (
	_ queue.Queue = &Queue{}
)

type Queue struct {
	client goredis.UniversalClient
	key    string
}

// NewQueue stores tasks under <prefix>tasks, prefix defaults to "flowexec:".
func NewQueue(client goredis.UniversalClient, prefix string) *Queue {
	if prefix == "" {
		prefix = "flowexec:"
	}
	return &Queue{client: client, key: prefix + "tasks"}
}

func (q *Queue) Enqueue(ctx context.Context, t *queue.Task) error {
	b, err := queue.EncodeTask(t)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(q.client.LPush(ctx, q.key, b).Err(), "redis enqueue %s", t.RunID)
}

func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*queue.Task, error) {
	var data string
	if wait <= 0 {
		v, err := q.client.RPop(ctx, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Annotatef(err, "redis dequeue")
		}
		data = v
	} else {
		// BRPop returns [key, value]
		res, err := q.client.BRPop(ctx, wait, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Annotatef(err, "redis dequeue")
		}
		if len(res) != 2 {
			log.Warnf("redis queue: BRPop returned unexpected result: %#v", res)
			return nil, nil
		}
		data = res[1]
	}
	return queue.DecodeTask([]byte(data))
}

func (q *Queue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		log.Errorf("redis queue: LLEN %s failed: %v", q.key, err)
		return 0
	}
	return int(n)
}
