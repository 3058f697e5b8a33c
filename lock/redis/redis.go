// Package redis is the Locker shared by every engine pointing at the same
// Redis. Keys hold the owner token and expire with a TTL.
package redis

import (
	"context"
	"time"

	"github.com/juju/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/warriorguo/flowexec/lock"
	"github.com/warriorguo/flowexec/types"
)

var (
	_ types.Locker = &Locker{}
)

var (
	// returns 1 when the owner still holds the key and its ttl was pushed
	renewLua = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]))
	return 1
end
return 0
`)

	// returns 1 when the owner released it
	releaseLua = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)
)

type Locker struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewLocker uses prefix ("flowexec:" when empty) to namespace keys.
func NewLocker(client goredis.UniversalClient, prefix string, ttl time.Duration) (*Locker, error) {
	if ttl <= 0 {
		return nil, errors.NotValidf("lock ttl %v", ttl)
	}
	if prefix == "" {
		prefix = "flowexec:"
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl}, nil
}

// MutexLock is a SET NX: a held key is refused whoever asks.
func (l *Locker) MutexLock(ctx context.Context, key, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return false, errors.Annotatef(err, "redis lock %s", key)
	}
	return ok, nil
}

func (l *Locker) Renew(ctx context.Context, key, token string) (bool, error) {
	n, err := renewLua.Run(ctx, l.client, []string{l.prefix + key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Annotatef(err, "redis renew %s", key)
	}
	return n == 1, nil
}

func (l *Locker) SpinLock(ctx context.Context, key, token string, maxWait time.Duration) (bool, error) {
	return lock.Spin(ctx, maxWait, func() (bool, error) {
		return l.MutexLock(ctx, key, token)
	})
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if err := releaseLua.Run(ctx, l.client, []string{l.prefix + key}, token).Err(); err != nil {
		return errors.Annotatef(err, "redis release %s", key)
	}
	return nil
}
