// Package idempotency deduplicates Pub/Sub deliveries per consumer.
//
// A delivery first takes a short lease (state "inflight"). Completing it
// rewrites the key to "done" with the long retention TTL; releasing it deletes
// the key so a redelivery can try again. A worker that dies mid-message loses
// its lease when the lease TTL runs out.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	stateInFlight = "inflight"
	stateDone     = "done"

	defaultLeaseTTL = 2 * time.Minute
)

// Status is the outcome of Begin.
type Status int

const (
	// StatusNew means the caller owns the lease and must Complete or Release.
	StatusNew Status = iota
	// StatusInFlight means another delivery holds the lease.
	StatusInFlight
	// StatusDone means the event was already handled.
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusInFlight:
		return "inflight"
	case StatusDone:
		return "done"
	}
	return "unknown"
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager tracks deliveries under np:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store    store
	ttl      time.Duration
	leaseTTL time.Duration
}

// NewManager keeps done marks for ttl (0 keeps them forever).
func NewManager(s store, ttl time.Duration) (*Manager, error) {
	if s == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	lease := defaultLeaseTTL
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: s, ttl: ttl, leaseTTL: lease}, nil
}

// WithLease overrides how long an unfinished delivery blocks redeliveries.
func (m *Manager) WithLease(d time.Duration) *Manager {
	if d > 0 {
		m.leaseTTL = d
	}
	return m
}

// Begin tries to take the lease for eventID.
func (m *Manager) Begin(ctx context.Context, consumer, eventID string) (Status, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return StatusNew, err
	}
	taken, err := m.store.SetNX(ctx, key, stateInFlight, m.leaseTTL)
	if err != nil {
		return StatusNew, err
	}
	if taken {
		return StatusNew, nil
	}
	state, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// The lease expired between the two calls; let the redelivery retry.
		return StatusInFlight, nil
	case err != nil:
		return StatusNew, err
	case state == stateDone:
		return StatusDone, nil
	}
	return StatusInFlight, nil
}

// Complete marks eventID as handled for the retention TTL.
func (m *Manager) Complete(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, stateDone, m.ttl)
}

// Release drops the lease so the next delivery processes eventID again.
func (m *Manager) Release(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID), nil
}
