package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 2 * time.Minute

// ErrBusy is returned when another holder owns the lock. Callers are not
// queued; contention surfaces immediately.
var ErrBusy = errors.New("lock busy")

// Token proves ownership of an acquired lock.
type Token string

// Locker serializes read-modify-write cycles on a named, environment-scoped resource.
type Locker interface {
	Acquire(ctx context.Context, resourceKey, env string) (Token, error)
	Release(ctx context.Context, resourceKey, env string, token Token) error
}

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	LockKey(resource, env string) string
}

// RedisLocker implements Locker using Redis SETNX + TTL with an owner token.
type RedisLocker struct {
	client redisStore
	ttl    time.Duration
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(client redisStore, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL. It returns ErrBusy
// without waiting when the lock is already held.
func (l *RedisLocker) Acquire(ctx context.Context, resourceKey, env string) (Token, error) {
	if resourceKey == "" || env == "" {
		return "", errors.New("lock resource and env are required")
	}
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.client.LockKey(resourceKey, env), owner, l.ttl)
	if err != nil {
		return "", fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrBusy, resourceKey, env)
	}
	return Token(owner), nil
}

// Release frees the lock only if token still owns it. Releasing an expired
// or foreign lock is a no-op.
func (l *RedisLocker) Release(ctx context.Context, resourceKey, env string, token Token) error {
	if token == "" {
		return nil
	}
	if _, err := l.client.CompareAndDelete(ctx, l.client.LockKey(resourceKey, env), string(token)); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
