package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Record is the persisted countdown of one actor.
type Record struct {
	ActorID   string    `json:"actorId"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StateStore persists countdowns keyed by actor id.
type StateStore interface {
	Load(ctx context.Context, actorID string) (*Record, error)
	Save(ctx context.Context, rec Record, ttl time.Duration) error
	Delete(ctx context.Context, actorID string) error
}

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	TimerKey(actorID string) string
}

// RedisStore keeps countdowns in Redis so they survive reloads and, for
// accounts, logout and login.
type RedisStore struct {
	kv redisKV
}

func NewRedisStore(kv redisKV) *RedisStore {
	return &RedisStore{kv: kv}
}

func (s *RedisStore) Load(ctx context.Context, actorID string) (*Record, error) {
	raw, err := s.kv.Get(ctx, s.kv.TimerKey(actorID))
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load timer: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode timer: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec Record, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode timer: %w", err)
	}
	return s.kv.Set(ctx, s.kv.TimerKey(rec.ActorID), string(payload), ttl)
}

func (s *RedisStore) Delete(ctx context.Context, actorID string) error {
	return s.kv.Del(ctx, s.kv.TimerKey(actorID))
}
