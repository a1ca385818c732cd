package identity

import (
	"context"
	"fmt"

	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/pkg/clock"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// ReservationLedger is the slice of the reservation store the login merge uses.
type ReservationLedger interface {
	ListBlockedForActor(ctx context.Context, actorID string) ([]models.ReservationRecord, error)
	ReleaseCartKeys(ctx context.Context, actorID string, cartKeys []string, reason reservations.ReleaseReason) ([]models.ReservationRecord, error)
	TransferOwner(ctx context.Context, fromActorID, toActorID string, cartKeys []string) (int64, error)
}

// TimerControl moves, cancels or expires per-actor countdowns.
type TimerControl interface {
	Handoff(ctx context.Context, from, to Actor) error
	CancelIfIdle(ctx context.Context, actor Actor) (bool, error)
	ExpireActor(ctx context.Context, actor Actor) error
}

// CartSessions moves or drops the lines of a cart session.
type CartSessions interface {
	SessionCartKeys(ctx context.Context, sessionKey string) ([]string, error)
	DiscardSession(ctx context.Context, sessionKey string) (int64, error)
	MoveSession(ctx context.Context, fromSessionKey, toSessionKey, toActorID string) (int64, error)
}

// MergeOutcome describes what happened to the guest's reservations on login.
type MergeOutcome string

const (
	MergeDiscarded   MergeOutcome = "discarded"
	MergeTransferred MergeOutcome = "transferred"
)

type MergeResult struct {
	Outcome        MergeOutcome `json:"outcome"`
	Released       int          `json:"released"`
	Transferred    int64        `json:"transferred"`
	PurgedExpired  bool         `json:"purgedExpired"`
	MovedCartLines int64        `json:"movedCartLines"`
}

type MigratorParams struct {
	Ledger ReservationLedger
	Timers TimerControl
	Carts  CartSessions
	Clock  clock.Clock
	Logger *logger.Logger
}

// Migrator hands a guest's claims to the account they log into.
type Migrator struct {
	ledger ReservationLedger
	timers TimerControl
	carts  CartSessions
	clock  clock.Clock
	logg   *logger.Logger
}

func NewMigrator(p MigratorParams) (*Migrator, error) {
	if p.Ledger == nil {
		return nil, fmt.Errorf("reservation ledger required")
	}
	if p.Timers == nil {
		return nil, fmt.Errorf("timer control required")
	}
	if p.Carts == nil {
		return nil, fmt.Errorf("cart sessions required")
	}
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}
	return &Migrator{ledger: p.Ledger, timers: p.Timers, carts: p.Carts, clock: p.Clock, logg: p.Logger}, nil
}

// Migrate applies the login merge policy:
//  1. an account still holding an unexpired blocked reservation keeps it and
//     the guest's reservations are released, never merged;
//  2. an account whose reservations expired is purged first and then
//     receives the guest's reservations;
//  3. an account with nothing blocked receives the guest's reservations.
//
// Any unexpired reservation on the account triggers rule 1, whatever product
// it is for. Only the lines of the guest's own cart session are released or
// transferred; guests sharing the address keep theirs.
func (m *Migrator) Migrate(ctx context.Context, guest, account Actor) (MergeResult, error) {
	if !guest.IsGuest() || account.IsGuest() {
		return MergeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "login merge requires a guest and an account")
	}
	if m.logg != nil {
		ctx = m.logg.WithFields(ctx, map[string]any{
			"guest_actor_id": guest.ID,
			"actor_id":       account.ID,
		})
	}

	sessionKeys, err := m.carts.SessionCartKeys(ctx, guest.SessionKey)
	if err != nil {
		return MergeResult{}, fmt.Errorf("list guest cart: %w", err)
	}

	held, err := m.ledger.ListBlockedForActor(ctx, account.ID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("list account reservations: %w", err)
	}

	now := m.clock.Now()
	valid := false
	for _, row := range held {
		if row.ExpiresAt.After(now) {
			valid = true
			break
		}
	}

	if valid {
		released, err := m.ledger.ReleaseCartKeys(ctx, guest.ID, sessionKeys, reservations.ReasonLoginDiscard)
		if err != nil {
			return MergeResult{}, fmt.Errorf("release guest reservations: %w", err)
		}
		if _, err := m.carts.DiscardSession(ctx, guest.SessionKey); err != nil {
			return MergeResult{}, fmt.Errorf("discard guest cart: %w", err)
		}
		if _, err := m.timers.CancelIfIdle(ctx, guest); err != nil {
			return MergeResult{}, fmt.Errorf("cancel guest timer: %w", err)
		}
		result := MergeResult{Outcome: MergeDiscarded, Released: countNumbers(released)}
		m.log(ctx, "login merge kept account reservations", result)
		return result, nil
	}

	result := MergeResult{Outcome: MergeTransferred}
	if len(held) > 0 {
		if err := m.timers.ExpireActor(ctx, account); err != nil {
			return MergeResult{}, fmt.Errorf("purge expired account reservations: %w", err)
		}
		result.PurgedExpired = true
	}

	moved, err := m.ledger.TransferOwner(ctx, guest.ID, account.ID, sessionKeys)
	if err != nil {
		return MergeResult{}, fmt.Errorf("transfer guest reservations: %w", err)
	}
	result.Transferred = moved

	lines, err := m.carts.MoveSession(ctx, guest.SessionKey, account.SessionKey, account.ID)
	if err != nil {
		return MergeResult{}, fmt.Errorf("move guest cart: %w", err)
	}
	result.MovedCartLines = lines

	if err := m.timers.Handoff(ctx, guest, account); err != nil {
		return MergeResult{}, fmt.Errorf("hand off guest timer: %w", err)
	}
	m.log(ctx, "login merge transferred guest reservations", result)
	return result, nil
}

func (m *Migrator) log(ctx context.Context, msg string, result MergeResult) {
	if m.logg == nil {
		return
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"outcome":        string(result.Outcome),
		"released":       result.Released,
		"transferred":    result.Transferred,
		"purged_expired": result.PurgedExpired,
	})
	m.logg.Info(ctx, msg)
}

func countNumbers(rows []models.ReservationRecord) int {
	total := 0
	for _, row := range rows {
		total += len(row.Numbers)
	}
	return total
}
