// Package lock holds the run lock and archive lock implementations.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/types"
)

var (
	_ types.Locker = &MemLocker{}
)

const spinInterval = 50 * time.Millisecond

// RunKey and ArchiveKey build the two independent lock scopes of a run.
func RunKey(kind, executorID string) string {
	return "mutex:" + kind + ":" + executorID
}

func ArchiveKey(kind, executorID string) string {
	return "archive:" + kind + ":" + executorID
}

// Spin retries try until it succeeds, fails, ctx is done or maxWait elapses.
func Spin(ctx context.Context, maxWait time.Duration, try func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(maxWait)
	for {
		ok, err := try()
		if err != nil || ok {
			return ok, errors.Trace(err)
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, errors.Trace(ctx.Err())
		case <-time.After(spinInterval):
		}
	}
}

type holder struct {
	token    string
	expireAt time.Time
}

// MemLocker is a process-local Locker. Keys expire after ttl so a run that
// died without releasing does not block its id forever.
type MemLocker struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]holder
	now  func() time.Time
}

func NewMemLocker(ttl time.Duration) *MemLocker {
	return &MemLocker{
		ttl:  ttl,
		keys: make(map[string]holder),
		now:  time.Now,
	}
}

func (l *MemLocker) MutexLock(ctx context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, exists := l.keys[key]; exists && l.alive(h, now) {
		return false, nil
	}
	l.keys[key] = holder{token: token, expireAt: now.Add(l.ttl)}
	return true, nil
}

func (l *MemLocker) Renew(ctx context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	h, exists := l.keys[key]
	if !exists || h.token != token || !l.alive(h, now) {
		return false, nil
	}
	h.expireAt = now.Add(l.ttl)
	l.keys[key] = h
	return true, nil
}

func (l *MemLocker) alive(h holder, now time.Time) bool {
	return l.ttl <= 0 || now.Before(h.expireAt)
}

func (l *MemLocker) SpinLock(ctx context.Context, key, token string, maxWait time.Duration) (bool, error) {
	return Spin(ctx, maxWait, func() (bool, error) {
		return l.MutexLock(ctx, key, token)
	})
}

func (l *MemLocker) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, exists := l.keys[key]; exists && h.token == token {
		delete(l.keys, key)
	}
	return nil
}
