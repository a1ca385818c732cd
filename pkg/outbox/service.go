// Package outbox records domain events in the same transaction as the state
// change that caused them. A separate publisher ships the rows to Pub/Sub.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/enums"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// DomainEvent is what components hand to Emit. Set AggregateID for entities
// with their own uuid, or AggregateKey to derive a stable one from a string
// key such as an actor id.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	AggregateKey  string
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

type Service struct {
	repo  inserter
	logg  *logger.Logger
	now   func() time.Time
	newID func() string
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now, newID: uuid.NewString}
}

// Emit persists event inside tx so it commits or rolls back with the caller's
// state change.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	aggregateID, err := event.aggregateID()
	if err != nil {
		return err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	env := PayloadEnvelope{
		Version:    CurrentVersion,
		EventID:    s.newID(),
		OccurredAt: occurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       env.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   aggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

func (e DomainEvent) aggregateID() (uuid.UUID, error) {
	switch {
	case e.EventType == "":
		return uuid.Nil, errors.New("event type required")
	case e.AggregateType == "":
		return uuid.Nil, fmt.Errorf("%s: aggregate type required", e.EventType)
	case e.AggregateID != uuid.Nil:
		return e.AggregateID, nil
	case e.AggregateKey != "":
		return AggregateIDFor(e.AggregateType, e.AggregateKey), nil
	}
	return uuid.Nil, fmt.Errorf("%s: aggregate id or key required", e.EventType)
}

// AggregateIDFor derives a stable aggregate id for entities keyed by a
// non-uuid identifier such as an actor id or an external order id.
func AggregateIDFor(kind enums.OutboxAggregateType, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(kind)+":"+key))
}
