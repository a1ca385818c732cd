package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/numberpool/pkg/instance"
)

const defaultLockTTL = 5 * time.Minute

// UnlockFunc gives up a lock obtained from TryLock.
type UnlockFunc func(ctx context.Context) error

// Lock gives one instance at a time the right to run a cycle.
type Lock interface {
	TryLock(ctx context.Context) (unlock UnlockFunc, ok bool, err error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock is a SET NX lease with a per-acquisition owner token. The TTL
// bounds how long a crashed worker keeps others out.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryLock(ctx context.Context) (UnlockFunc, bool, error) {
	owner := instance.GetID() + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func(ctx context.Context) error {
		// a lease that already expired and was taken over is left alone
		if _, err := l.store.ReleaseIfOwner(ctx, l.key, owner); err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
		return nil
	}
	return unlock, true, nil
}
