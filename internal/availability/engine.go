package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/pkg/clock"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	"github.com/angelmondragon/numberpool/pkg/logger"
	"github.com/angelmondragon/numberpool/pkg/metrics"
)

// LimitSource returns a product's pool configuration.
type LimitSource interface {
	GetLimit(ctx context.Context, productID int64) (*models.ProductLimit, error)
}

// Ledger is the read side of the reservation store plus the stale-row purge.
type Ledger interface {
	FindBlocking(ctx context.Context, parentProductID int64, numbers dbtypes.NumberList) ([]models.ReservationRecord, error)
	CountForActor(ctx context.Context, actorID string, parentProductID int64, excludingCartKey string) (int, error)
	ListForProduct(ctx context.Context, parentProductID int64) ([]models.ReservationRecord, error)
	PurgeStale(ctx context.Context, actorID string, liveCartKeys []string) ([]models.ReservationRecord, error)
	ReleaseRecord(ctx context.Context, id uuid.UUID, reason reservations.ReleaseReason) ([]models.ReservationRecord, error)
}

// LiveCart lists the cart lines an actor currently has.
type LiveCart interface {
	LiveCartKeys(ctx context.Context, actorID string) ([]string, error)
}

// Expirer runs the expiry cascade for an actor whose deadline passed.
type Expirer interface {
	ExpireActor(ctx context.Context, actor identity.Actor) error
}

type Params struct {
	Limits  LimitSource
	Ledger  Ledger
	Cart    LiveCart
	Expirer Expirer
	Clock   clock.Clock
	Logger  *logger.Logger
	Metrics *metrics.ReservationMetrics
}

// Engine answers whether numbers are free for an actor. Nothing is cached
// between calls.
type Engine struct {
	limits  LimitSource
	ledger  Ledger
	cart    LiveCart
	expirer Expirer
	clock   clock.Clock
	logg    *logger.Logger
	metrics *metrics.ReservationMetrics
}

func NewEngine(p Params) (*Engine, error) {
	if p.Limits == nil {
		return nil, fmt.Errorf("limit source required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("reservation ledger required")
	}
	if p.Cart == nil {
		return nil, fmt.Errorf("live cart required")
	}
	if p.Expirer == nil {
		return nil, fmt.Errorf("expirer required")
	}
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}
	return &Engine{
		limits:  p.Limits,
		ledger:  p.Ledger,
		cart:    p.Cart,
		expirer: p.Expirer,
		clock:   p.Clock,
		logg:    p.Logger,
		metrics: p.Metrics,
	}, nil
}

// CheckInput asks about one or more numbers of a product. ExcludingCartKey
// names the line being edited so its own numbers do not count toward quota.
type CheckInput struct {
	ParentProductID  int64
	Numbers          dbtypes.NumberList
	Actor            identity.Actor
	ExcludingCartKey string
}

// Verdict is the answer for a single number.
type Verdict struct {
	Number      int                      `json:"number"`
	Status      enums.AvailabilityStatus `json:"status"`
	Available   bool                     `json:"available"`
	HeldCount   int                      `json:"heldCount,omitempty"`
	MaxQuantity int                      `json:"maxQuantity,omitempty"`
	CartKey     string                   `json:"cartKey,omitempty"`
}

// Message is the shopper-facing explanation of an unavailable verdict.
func (v Verdict) Message() string {
	switch v.Status {
	case enums.AvailabilitySold:
		return fmt.Sprintf("Number %d has already been sold.", v.Number)
	case enums.AvailabilityInOtherCart:
		return fmt.Sprintf("Number %d is reserved in another cart. Please choose a different number.", v.Number)
	case enums.AvailabilityMaxQuantity:
		return fmt.Sprintf("You already hold %d of %d numbers for this product.", v.HeldCount, v.MaxQuantity)
	case enums.AvailabilityOutOfRange:
		return fmt.Sprintf("Number %d is outside the range offered for this product.", v.Number)
	case enums.AvailabilityInYourCart:
		return fmt.Sprintf("Number %d is already in your cart.", v.Number)
	default:
		return fmt.Sprintf("Number %d is available.", v.Number)
	}
}

// Check evaluates a single number.
func (e *Engine) Check(ctx context.Context, parentProductID int64, number int, actor identity.Actor, excludingCartKey string) (Verdict, error) {
	verdicts, err := e.CheckNumbers(ctx, CheckInput{
		ParentProductID:  parentProductID,
		Numbers:          dbtypes.NumberList{number},
		Actor:            actor,
		ExcludingCartKey: excludingCartKey,
	})
	if err != nil {
		return Verdict{}, err
	}
	return verdicts[0], nil
}

// CheckNumbers evaluates numbers in order. Sold beats blocked, blocked beats
// quota, quota beats range. Numbers found available earlier in the batch count
// toward the quota of later ones.
func (e *Engine) CheckNumbers(ctx context.Context, in CheckInput) ([]Verdict, error) {
	if len(in.Numbers) == 0 {
		return nil, fmt.Errorf("at least one number required")
	}
	limit, err := e.limits.GetLimit(ctx, in.ParentProductID)
	if err != nil {
		return nil, err
	}
	live, err := e.purgeStale(ctx, in.Actor)
	if err != nil {
		return nil, err
	}

	rows, err := e.ledger.FindBlocking(ctx, in.ParentProductID, in.Numbers)
	if err != nil {
		return nil, err
	}
	rows, err = e.healStale(ctx, rows, in.Actor, live)
	if err != nil {
		return nil, err
	}

	held := 0
	if limit.MaxQuantity > 0 {
		held, err = e.ledger.CountForActor(ctx, in.Actor.ID, in.ParentProductID, in.ExcludingCartKey)
		if err != nil {
			return nil, err
		}
	}

	verdicts := make([]Verdict, 0, len(in.Numbers))
	for _, n := range in.Numbers {
		v := classify(n, rows, in.Actor, live, limit, held)
		if v.Available && (v.Status == enums.AvailabilityAvailable || v.CartKey == in.ExcludingCartKey) {
			held++
		}
		e.metrics.ObserveVerdict(v.Status.String())
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

func classify(n int, rows []models.ReservationRecord, actor identity.Actor, live map[string]bool, limit *models.ProductLimit, held int) Verdict {
	v := Verdict{Number: n}

	var blocking *models.ReservationRecord
	for i := range rows {
		if !rows[i].Numbers.Contains(n) {
			continue
		}
		if rows[i].Status == enums.ReservationStatusOrdered {
			v.Status = enums.AvailabilitySold
			return v
		}
		if blocking == nil {
			blocking = &rows[i]
		}
	}
	if blocking != nil {
		if blocking.ActorID == actor.ID && live[blocking.CartKey] {
			v.Status = enums.AvailabilityInYourCart
			v.Available = true
			v.CartKey = blocking.CartKey
			return v
		}
		v.Status = enums.AvailabilityInOtherCart
		return v
	}

	if limit.MaxQuantity > 0 && held >= limit.MaxQuantity {
		v.Status = enums.AvailabilityMaxQuantity
		v.HeldCount = held
		v.MaxQuantity = limit.MaxQuantity
		return v
	}
	if n < limit.Start || n > limit.End {
		v.Status = enums.AvailabilityOutOfRange
		return v
	}
	v.Status = enums.AvailabilityAvailable
	v.Available = true
	return v
}

// purgeStale drops the actor's blocked rows whose cart line is gone and
// returns the live cart keys.
func (e *Engine) purgeStale(ctx context.Context, actor identity.Actor) (map[string]bool, error) {
	keys, err := e.cart.LiveCartKeys(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("load live cart: %w", err)
	}
	purged, err := e.ledger.PurgeStale(ctx, actor.ID, keys)
	if err != nil {
		return nil, fmt.Errorf("purge stale reservations: %w", err)
	}
	if len(purged) > 0 && e.logg != nil {
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"actor_id": actor.ID,
			"purged":   len(purged),
		})
		e.logg.Info(logCtx, "purged stale reservations")
	}
	live := make(map[string]bool, len(keys))
	for _, k := range keys {
		live[k] = true
	}
	return live, nil
}

// healStale drops rows that no longer hold their numbers: another actor's
// rows past their deadline trigger that actor's expiry cascade, and the
// caller's own rows without a live cart line are released. Evaluation then
// falls through to quota and range.
func (e *Engine) healStale(ctx context.Context, rows []models.ReservationRecord, actor identity.Actor, live map[string]bool) ([]models.ReservationRecord, error) {
	now := e.clock.Now()
	expired := make(map[string]bool)
	kept := rows[:0]
	for _, row := range rows {
		if row.Status != enums.ReservationStatusBlocked {
			kept = append(kept, row)
			continue
		}
		if row.ActorID != actor.ID && now.After(row.ExpiresAt) {
			if !expired[row.ActorID] {
				owner := identity.ActorForID(row.ActorID)
				if err := e.expirer.ExpireActor(ctx, owner); err != nil {
					return nil, fmt.Errorf("expire reservation owner: %w", err)
				}
				expired[row.ActorID] = true
			}
			continue
		}
		if row.ActorID == actor.ID && !live[row.CartKey] {
			if _, err := e.ledger.ReleaseRecord(ctx, row.ID, reservations.ReasonStale); err != nil {
				return nil, fmt.Errorf("release stale reservation: %w", err)
			}
			continue
		}
		kept = append(kept, row)
	}
	return kept, nil
}

// Snapshot classifies every number of a product's range for a picker.
type Snapshot struct {
	ParentProductID int64 `json:"parentProductId"`
	Start           int   `json:"start"`
	End             int   `json:"end"`
	MaxQuantity     int   `json:"maxQuantity,omitempty"`
	HeldCount       int   `json:"heldCount"`
	Free            []int `json:"free"`
	Sold            []int `json:"sold"`
	BlockedByOthers []int `json:"blockedByOthers"`
	BlockedByMe     []int `json:"blockedByMe"`
}

func (e *Engine) Snapshot(ctx context.Context, parentProductID int64, actor identity.Actor) (Snapshot, error) {
	limit, err := e.limits.GetLimit(ctx, parentProductID)
	if err != nil {
		return Snapshot{}, err
	}
	live, err := e.purgeStale(ctx, actor)
	if err != nil {
		return Snapshot{}, err
	}
	rows, err := e.ledger.ListForProduct(ctx, parentProductID)
	if err != nil {
		return Snapshot{}, err
	}
	rows, err = e.healStale(ctx, rows, actor, live)
	if err != nil {
		return Snapshot{}, err
	}

	state := make(map[int]enums.AvailabilityStatus)
	snap := Snapshot{
		ParentProductID: parentProductID,
		Start:           limit.Start,
		End:             limit.End,
		MaxQuantity:     limit.MaxQuantity,
		Free:            []int{},
		Sold:            []int{},
		BlockedByOthers: []int{},
		BlockedByMe:     []int{},
	}
	for _, row := range rows {
		for _, n := range row.Numbers {
			switch {
			case row.Status == enums.ReservationStatusOrdered:
				state[n] = enums.AvailabilitySold
			case state[n] == enums.AvailabilitySold:
			case row.ActorID == actor.ID:
				state[n] = enums.AvailabilityInYourCart
				snap.HeldCount++
			default:
				state[n] = enums.AvailabilityInOtherCart
			}
		}
	}
	for n := limit.Start; n <= limit.End; n++ {
		switch state[n] {
		case enums.AvailabilitySold:
			snap.Sold = append(snap.Sold, n)
		case enums.AvailabilityInYourCart:
			snap.BlockedByMe = append(snap.BlockedByMe, n)
		case enums.AvailabilityInOtherCart:
			snap.BlockedByOthers = append(snap.BlockedByOthers, n)
		default:
			snap.Free = append(snap.Free, n)
		}
	}
	return snap, nil
}
