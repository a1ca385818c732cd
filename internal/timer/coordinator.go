package timer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/internal/events"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/pkg/clock"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	"github.com/angelmondragon/numberpool/pkg/enums"
	"github.com/angelmondragon/numberpool/pkg/logger"
	"github.com/angelmondragon/numberpool/pkg/metrics"
	"github.com/angelmondragon/numberpool/pkg/outbox"
	"github.com/angelmondragon/numberpool/pkg/outbox/payloads"
)

// Ledger is the slice of the reservation store the coordinator drives.
type Ledger interface {
	ListBlockedForActor(ctx context.Context, actorID string) ([]models.ReservationRecord, error)
	ExtendExpiry(ctx context.Context, actorID string, expiresAt time.Time) (int64, error)
	DeleteBlockedForActor(ctx context.Context, actorID string, reason reservations.ReleaseReason) ([]models.ReservationRecord, error)
	ListExpiredActors(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// ExpiryPublisher announces finished expiry cascades.
type ExpiryPublisher interface {
	PublishTimerExpired(ctx context.Context, event events.TimerExpired) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Params struct {
	Store    StateStore
	Ledger   Ledger
	Bus      ExpiryPublisher
	Tx       txRunner
	Outbox   reservations.EventEmitter
	Clock    clock.Clock
	Duration time.Duration
	GuestTTL time.Duration
	Logger   *logger.Logger
	Metrics  *metrics.ReservationMetrics
}

// Coordinator runs one shared countdown per actor. Expiry is observed
// lazily on status checks and by the periodic sweep.
type Coordinator struct {
	store    StateStore
	ledger   Ledger
	bus      ExpiryPublisher
	tx       txRunner
	outbox   reservations.EventEmitter
	clock    clock.Clock
	duration time.Duration
	guestTTL time.Duration
	logg     *logger.Logger
	metrics  *metrics.ReservationMetrics
}

func NewCoordinator(p Params) (*Coordinator, error) {
	switch {
	case p.Store == nil:
		return nil, fmt.Errorf("timer state store required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("reservation ledger required")
	case p.Bus == nil:
		return nil, fmt.Errorf("event bus required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case p.Duration <= 0:
		return nil, fmt.Errorf("timer duration must be positive")
	}
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}
	return &Coordinator{
		store:    p.Store,
		ledger:   p.Ledger,
		bus:      p.Bus,
		tx:       p.Tx,
		outbox:   p.Outbox,
		clock:    p.Clock,
		duration: p.Duration,
		guestTTL: p.GuestTTL,
		logg:     p.Logger,
		metrics:  p.Metrics,
	}, nil
}

// Status is the countdown as seen by the shopper.
type Status struct {
	State            enums.TimerState `json:"state"`
	StartedAt        *time.Time       `json:"startedAt,omitempty"`
	ExpiresAt        *time.Time       `json:"expiresAt,omitempty"`
	RemainingSeconds int64            `json:"remainingSeconds"`
	ReleasedNumbers  int              `json:"releasedNumbers,omitempty"`
}

// SweepResult summarizes a periodic expiry pass.
type SweepResult struct {
	Expired  int
	Released int
	Failed   int
}

// Register subscribes the coordinator to reservation writes.
func (c *Coordinator) Register(bus *events.Bus) {
	bus.OnCartLineChanged(c.HandleCartLineChanged)
}

// HandleCartLineChanged restarts the countdown after numbers were claimed.
func (c *Coordinator) HandleCartLineChanged(ctx context.Context, event events.CartLineChanged) error {
	if event.Change != events.LineClaimed {
		return nil
	}
	_, err := c.Touch(ctx, event.Actor)
	return err
}

// Deadline is the expiry a reservation written now receives.
func (c *Coordinator) Deadline() time.Time {
	return c.clock.Now().Add(c.duration)
}

// Touch starts the countdown or pushes it forward, and moves the deadline of
// every blocked row the actor holds with it.
func (c *Coordinator) Touch(ctx context.Context, actor identity.Actor) (Status, error) {
	now := c.clock.Now()
	rec, err := c.store.Load(ctx, actor.ID)
	if err != nil {
		return Status{}, err
	}

	from, ev := enums.TimerStateNone, EventStart
	if rec != nil && rec.ExpiresAt.After(now) {
		from, ev = enums.TimerStateActive, EventTouch
	}
	next, err := Transition(from, ev)
	if err != nil {
		return Status{}, err
	}
	if ev == EventStart {
		rec = &Record{ActorID: actor.ID, StartedAt: now}
	}
	rec.ExpiresAt = now.Add(c.duration)

	if err := c.store.Save(ctx, *rec, c.ttlFor(actor)); err != nil {
		return Status{}, err
	}
	if _, err := c.ledger.ExtendExpiry(ctx, actor.ID, rec.ExpiresAt); err != nil {
		return Status{}, fmt.Errorf("extend reservation expiry: %w", err)
	}
	if c.logg != nil && ev == EventStart {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"actor_id":   actor.ID,
			"expires_at": rec.ExpiresAt,
		})
		c.logg.Info(logCtx, "reservation timer started")
	}
	return statusOf(next, rec, now), nil
}

// Status reports the countdown and runs the expiry cascade when the deadline
// has passed. A missing countdown is rebuilt from the actor's blocked rows.
func (c *Coordinator) Status(ctx context.Context, actor identity.Actor) (Status, error) {
	now := c.clock.Now()
	rec, err := c.store.Load(ctx, actor.ID)
	if err != nil {
		return Status{}, err
	}
	if rec == nil {
		rec, err = c.rebuild(ctx, actor)
		if err != nil {
			return Status{}, err
		}
		if rec == nil {
			return Status{State: enums.TimerStateNone}, nil
		}
	}
	if !now.After(rec.ExpiresAt) {
		return statusOf(enums.TimerStateActive, rec, now), nil
	}

	released, err := c.expire(ctx, actor, rec.ExpiresAt)
	if err != nil {
		return Status{}, err
	}
	status := statusOf(enums.TimerStateExpired, rec, now)
	status.ReleasedNumbers = released
	return status, nil
}

func (c *Coordinator) rebuild(ctx context.Context, actor identity.Actor) (*Record, error) {
	rows, err := c.ledger.ListBlockedForActor(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := &Record{ActorID: actor.ID, StartedAt: rows[0].CreatedAt, ExpiresAt: rows[0].ExpiresAt}
	for _, row := range rows[1:] {
		if row.CreatedAt.Before(rec.StartedAt) {
			rec.StartedAt = row.CreatedAt
		}
		if row.ExpiresAt.After(rec.ExpiresAt) {
			rec.ExpiresAt = row.ExpiresAt
		}
	}
	if rec.ExpiresAt.After(c.clock.Now()) {
		if err := c.store.Save(ctx, *rec, c.ttlFor(actor)); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Cancel collapses an active countdown without releasing anything.
func (c *Coordinator) Cancel(ctx context.Context, actor identity.Actor) error {
	rec, err := c.store.Load(ctx, actor.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if _, err := Transition(enums.TimerStateActive, EventCancel); err != nil {
		return err
	}
	return c.store.Delete(ctx, actor.ID)
}

// CancelIfIdle cancels the countdown once the actor holds no blocked rows,
// for example after checkout finalized every line.
func (c *Coordinator) CancelIfIdle(ctx context.Context, actor identity.Actor) (bool, error) {
	rows, err := c.ledger.ListBlockedForActor(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	if len(rows) > 0 {
		return false, nil
	}
	return true, c.Cancel(ctx, actor)
}

// Handoff copies a guest countdown to the account it logged into. An account
// countdown that ends later is kept. The guest countdown survives while other
// sessions of the guest still hold blocked rows.
func (c *Coordinator) Handoff(ctx context.Context, from, to identity.Actor) error {
	rec, err := c.store.Load(ctx, from.ID)
	if err != nil || rec == nil {
		return err
	}
	if rec.ExpiresAt.After(c.clock.Now()) {
		existing, err := c.store.Load(ctx, to.ID)
		if err != nil {
			return err
		}
		if existing == nil || !existing.ExpiresAt.After(rec.ExpiresAt) {
			moved := *rec
			moved.ActorID = to.ID
			if err := c.store.Save(ctx, moved, c.ttlFor(to)); err != nil {
				return err
			}
		}
	}
	_, err = c.CancelIfIdle(ctx, from)
	return err
}

// ExpireActor runs the expiry cascade immediately.
func (c *Coordinator) ExpireActor(ctx context.Context, actor identity.Actor) error {
	_, err := c.expire(ctx, actor, c.clock.Now())
	return err
}

// Sweep expires every actor holding blocked rows past their deadline.
func (c *Coordinator) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	actors, err := c.ledger.ListExpiredActors(ctx, c.clock.Now(), limit)
	if err != nil {
		return SweepResult{}, err
	}
	var (
		result SweepResult
		errs   error
	)
	for _, id := range actors {
		actor := identity.ActorForID(id)
		released, err := c.expire(ctx, actor, c.clock.Now())
		if err != nil {
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", id, err))
			continue
		}
		result.Expired++
		result.Released += released
	}
	return result, errs
}

// expire deletes the actor's blocked rows, lets subscribers drop the cart
// lines, and resets the countdown. It returns how many numbers were freed.
func (c *Coordinator) expire(ctx context.Context, actor identity.Actor, at time.Time) (int, error) {
	state, err := Transition(enums.TimerStateActive, EventExpire)
	if err != nil {
		return 0, err
	}

	rows, err := c.ledger.DeleteBlockedForActor(ctx, actor.ID, reservations.ReasonExpired)
	if err != nil {
		return 0, fmt.Errorf("delete expired reservations: %w", err)
	}
	released := 0
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		released += len(row.Numbers)
		keys = append(keys, row.CartKey)
	}

	var errs error
	errs = multierr.Append(errs, c.bus.PublishTimerExpired(ctx, events.TimerExpired{
		Actor:     actor,
		ExpiredAt: at,
		CartKeys:  keys,
	}))
	errs = multierr.Append(errs, c.store.Delete(ctx, actor.ID))
	if _, err := Transition(state, EventReset); err != nil {
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTimerExpired,
			AggregateType: enums.AggregateTimer,
			AggregateKey:  actor.ID,
			Actor:         &outbox.ActorRef{ActorID: actor.ID, Kind: enums.ActorKindOf(actor.ID)},
			Data: payloads.TimerExpiredEvent{
				ActorID:      actor.ID,
				ExpiredAt:    at,
				ReleasedRows: len(rows),
				RemovedLines: len(keys),
			},
		})
	}))

	c.metrics.IncExpiry()
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"actor_id":         actor.ID,
			"released_rows":    len(rows),
			"released_numbers": released,
		})
		c.logg.Info(logCtx, "reservation timer expired")
	}
	return released, errs
}

func (c *Coordinator) ttlFor(actor identity.Actor) time.Duration {
	if actor.Kind == enums.ActorKindGuest || enums.ActorKindOf(actor.ID) == enums.ActorKindGuest {
		return c.guestTTL
	}
	return 0
}

func statusOf(state enums.TimerState, rec *Record, now time.Time) Status {
	started, expires := rec.StartedAt, rec.ExpiresAt
	status := Status{State: state, StartedAt: &started, ExpiresAt: &expires}
	if state == enums.TimerStateActive {
		status.RemainingSeconds = int64(expires.Sub(now).Round(time.Second) / time.Second)
	}
	return status
}
