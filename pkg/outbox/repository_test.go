package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/enums"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func TestServiceEmitPersistsEnvelope(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(NewRepository(conn), nil)
	aggregateID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventReservationBlocked,
			AggregateType: enums.AggregateReservation,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{ActorID: "guest_x", Kind: enums.ActorKindGuest},
			Data:          map[string]any{"numbers": []int{3}},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, aggregateID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "guest_x", envelope.Actor.ActorID)
	assert.JSONEq(t, `{"numbers":[3]}`, string(envelope.Data))
}

func TestServiceEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{})
	require.Error(t, err)
}

func TestServiceEmitDerivesAggregateFromKey(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(NewRepository(conn), nil)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	svc.newID = func() string { return "evt-1" }

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventTimerExpired,
			AggregateType: enums.AggregateTimer,
			AggregateKey:  "guest_x",
			Data:          map[string]string{"actor_id": "guest_x"},
		})
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, AggregateIDFor(enums.AggregateTimer, "guest_x"), row.AggregateID)

	env, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", env.EventID)
	assert.True(t, env.OccurredAt.Equal(fixed))
}

func TestServiceEmitValidatesEvent(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	for name, event := range map[string]DomainEvent{
		"no type":      {AggregateType: enums.AggregateTimer, AggregateKey: "a"},
		"no aggregate": {EventType: enums.EventTimerExpired, AggregateKey: "a"},
		"no id or key": {EventType: enums.EventTimerExpired, AggregateType: enums.AggregateTimer},
	} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		assert.Error(t, err, name)
	}
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"eventId":"e","data":{"a":1}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version, "missing version reads as 1")

	_, err = DecodeEnvelope([]byte(`{"version":1,"data":null}`))
	assert.ErrorIs(t, err, ErrEmptyPayload)
	_, err = DecodeEnvelope([]byte(`{"version":1}`))
	assert.ErrorIs(t, err, ErrEmptyPayload)
	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)

	first := models.OutboxEvent{
		EventType:     enums.EventReservationReleased,
		AggregateType: enums.AggregateReservation,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	second := first
	second.AggregateID = uuid.New()
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	err := conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.NoError(t, repo.MarkPublishedTx(tx, rows[0].ID))
		require.NoError(t, repo.MarkFailedTx(tx, rows[1].ID, errors.New("unavailable")))
		return nil
	})
	require.NoError(t, err)

	var pending []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var fetchErr error
		pending, fetchErr = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return fetchErr
	}))
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "unavailable", *pending[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, pending[0].ID, errors.New("gone"), 3))
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var fetchErr error
		pending, fetchErr = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return fetchErr
	}))
	assert.Empty(t, pending)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	old := time.Now().UTC().Add(-48 * time.Hour)

	published := models.OutboxEvent{
		EventType:     enums.EventTimerExpired,
		AggregateType: enums.AggregateTimer,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		PublishedAt:   &old,
	}
	fresh := published
	fresh.AggregateID = uuid.New()
	fresh.PublishedAt = nil
	require.NoError(t, repo.Insert(conn, published))
	require.NoError(t, repo.Insert(conn, fresh))

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(context.Background(), tx, time.Now().UTC().Add(-24*time.Hour), 5)
		return err
	}))
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}

func TestAggregateIDForIsStable(t *testing.T) {
	a := AggregateIDFor(enums.AggregateTimer, "guest_x")
	b := AggregateIDFor(enums.AggregateTimer, "guest_x")
	c := AggregateIDFor(enums.AggregateOrder, "guest_x")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDLQRepositoryTruncatesAndPurges(t *testing.T) {
	conn := openTestDB(t)
	repo := NewDLQRepository(conn)
	long := string(make([]byte, maxDLQErrorLen+50))
	now := time.Now().UTC()

	stale := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventReservationBlocked,
		AggregateType: enums.AggregateReservation,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		FailedAt:      now.Add(-100 * 24 * time.Hour),
	}
	recent := stale
	recent.EventID = uuid.New()
	recent.FailedAt = now
	require.NoError(t, repo.InsertTx(conn, stale))
	require.NoError(t, repo.InsertTx(conn, recent))

	var stored models.OutboxDLQ
	require.NoError(t, conn.Where("event_id = ?", recent.EventID).First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, maxDLQErrorLen)

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeleteFailedBefore(context.Background(), tx, now.Add(-90*24*time.Hour))
		return err
	}))
	assert.Equal(t, int64(1), deleted)
	assert.Error(t, repo.InsertTx(nil, recent))
}
