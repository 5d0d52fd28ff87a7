package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/pkg/redis"
)

const defaultLockTTL = 10 * time.Minute

// Lock serialises sync runs per rep.
type Lock interface {
	Acquire(ctx context.Context, repID string) (bool, error)
	Release(ctx context.Context, repID string) error
}

// MemoryLock guards a single process.
type MemoryLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{held: map[string]struct{}{}}
}

func (l *MemoryLock) Acquire(_ context.Context, repID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[repID]; ok {
		return false, nil
	}
	l.held[repID] = struct{}{}
	return true, nil
}

func (l *MemoryLock) Release(_ context.Context, repID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, repID)
	return nil
}

// redisStore defines the operations used by RedisLock.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(scope, id string) string
}

// RedisLock implements Lock using Redis SETNX + TTL so devices sharing a
// host (or a rep signed in twice) never sync the same rep concurrently.
type RedisLock struct {
	client redisStore
	ttl    time.Duration

	mu     sync.Mutex
	owners map[string]string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, ttl: ttl, owners: map[string]string{}}, nil
}

// Acquire tries to own the rep's lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context, repID string) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.client.LockKey("sync", repID), owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.owners[repID] = owner
		l.mu.Unlock()
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (l *RedisLock) Release(ctx context.Context, repID string) error {
	l.mu.Lock()
	owner := l.owners[repID]
	l.mu.Unlock()
	if owner == "" {
		return nil
	}

	key := l.client.LockKey("sync", repID)
	value, err := l.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.forget(repID)
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		l.forget(repID)
		return nil
	}
	if err := l.client.Del(ctx, key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.forget(repID)
	return nil
}

func (l *RedisLock) forget(repID string) {
	l.mu.Lock()
	delete(l.owners, repID)
	l.mu.Unlock()
}
