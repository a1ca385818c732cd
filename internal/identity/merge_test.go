package identity

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/pkg/clock"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type stubLedger struct {
	rows        map[string][]models.ReservationRecord
	deleted     map[string]reservations.ReleaseReason
	transferred [2]string
}

func (s *stubLedger) ListBlockedForActor(ctx context.Context, actorID string) ([]models.ReservationRecord, error) {
	return s.rows[actorID], nil
}

// take removes the actor's rows whose cart key is listed, or all rows when
// keys is nil.
func (s *stubLedger) take(actorID string, keys []string) []models.ReservationRecord {
	var taken, kept []models.ReservationRecord
	for _, row := range s.rows[actorID] {
		if keys == nil || slices.Contains(keys, row.CartKey) {
			taken = append(taken, row)
			continue
		}
		kept = append(kept, row)
	}
	s.rows[actorID] = kept
	return taken
}

func (s *stubLedger) ReleaseCartKeys(ctx context.Context, actorID string, cartKeys []string, reason reservations.ReleaseReason) ([]models.ReservationRecord, error) {
	if s.deleted == nil {
		s.deleted = map[string]reservations.ReleaseReason{}
	}
	s.deleted[actorID] = reason
	if len(cartKeys) == 0 {
		return nil, nil
	}
	return s.take(actorID, cartKeys), nil
}

func (s *stubLedger) TransferOwner(ctx context.Context, fromActorID, toActorID string, cartKeys []string) (int64, error) {
	s.transferred = [2]string{fromActorID, toActorID}
	if len(cartKeys) == 0 {
		return 0, nil
	}
	moved := s.take(fromActorID, cartKeys)
	s.rows[toActorID] = append(s.rows[toActorID], moved...)
	return int64(len(moved)), nil
}

type stubTimers struct {
	handoff   bool
	cancelled []string
	expired   []string
	ledger    *stubLedger
}

func (s *stubTimers) Handoff(ctx context.Context, from, to Actor) error {
	s.handoff = true
	return nil
}

func (s *stubTimers) CancelIfIdle(ctx context.Context, actor Actor) (bool, error) {
	if len(s.ledger.rows[actor.ID]) > 0 {
		return false, nil
	}
	s.cancelled = append(s.cancelled, actor.ID)
	return true, nil
}

func (s *stubTimers) ExpireActor(ctx context.Context, actor Actor) error {
	s.expired = append(s.expired, actor.ID)
	s.ledger.take(actor.ID, nil)
	return nil
}

type stubCarts struct {
	sessions  map[string][]string
	discarded []string
	moved     [3]string
}

func (s *stubCarts) SessionCartKeys(ctx context.Context, sessionKey string) ([]string, error) {
	return s.sessions[sessionKey], nil
}

func (s *stubCarts) DiscardSession(ctx context.Context, sessionKey string) (int64, error) {
	s.discarded = append(s.discarded, sessionKey)
	return int64(len(s.sessions[sessionKey])), nil
}

func (s *stubCarts) MoveSession(ctx context.Context, fromSessionKey, toSessionKey, toActorID string) (int64, error) {
	s.moved = [3]string{fromSessionKey, toSessionKey, toActorID}
	return int64(len(s.sessions[fromSessionKey])), nil
}

func blockedRow(cartKey string, expiresAt time.Time, numbers ...int) models.ReservationRecord {
	return models.ReservationRecord{
		CartKey:         cartKey,
		ParentProductID: 100,
		Numbers:         dbtypes.NumberList(numbers),
		Status:          enums.ReservationStatusBlocked,
		ExpiresAt:       expiresAt,
	}
}

func newMigratorFixture(t *testing.T, rows map[string][]models.ReservationRecord) (*Migrator, *stubLedger, *stubTimers, *stubCarts) {
	t.Helper()
	ledger := &stubLedger{rows: rows}
	timers := &stubTimers{ledger: ledger}
	carts := &stubCarts{sessions: map[string][]string{
		guestActor.SessionKey: {"guest-line"},
		otherTab.SessionKey:   {"other-line"},
	}}
	m, err := NewMigrator(MigratorParams{Ledger: ledger, Timers: timers, Carts: carts, Clock: clock.NewFixed(now)})
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}
	return m, ledger, timers, carts
}

var (
	guestActor   = Actor{ID: "guest_abc", Kind: enums.ActorKindGuest, SessionKey: "session:s1"}
	accountActor = Actor{ID: "42", Kind: enums.ActorKindAccount, SessionKey: "account:42"}
	// otherTab shares guestActor's address, and so its actor id.
	otherTab = Actor{ID: "guest_abc", Kind: enums.ActorKindGuest, SessionKey: "session:s2"}
)

func TestMigrateDiscardsGuestWhenAccountHoldsValidReservation(t *testing.T) {
	t.Parallel()

	m, ledger, timers, carts := newMigratorFixture(t, map[string][]models.ReservationRecord{
		"42":        {blockedRow("acct-line", now.Add(5*time.Minute), 1)},
		"guest_abc": {blockedRow("guest-line", now.Add(10*time.Minute), 2, 3)},
	})

	result, err := m.Migrate(context.Background(), guestActor, accountActor)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if result.Outcome != MergeDiscarded || result.Released != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if ledger.deleted["guest_abc"] != reservations.ReasonLoginDiscard {
		t.Fatalf("expected guest rows released for login discard, got %+v", ledger.deleted)
	}
	if ledger.transferred[0] != "" {
		t.Fatal("transfer must not happen while the account holds a valid reservation")
	}
	if len(ledger.rows["guest_abc"]) != 0 {
		t.Fatalf("expected guest rows released, got %+v", ledger.rows["guest_abc"])
	}
	if len(ledger.rows["42"]) != 1 {
		t.Fatalf("account must keep its own reservation, got %+v", ledger.rows["42"])
	}
	if len(carts.discarded) != 1 || carts.discarded[0] != "session:s1" {
		t.Fatalf("expected guest cart discarded, got %v", carts.discarded)
	}
	if len(timers.cancelled) != 1 || timers.cancelled[0] != "guest_abc" {
		t.Fatalf("expected guest timer cancelled, got %v", timers.cancelled)
	}
}

func TestMigratePurgesExpiredAccountThenTransfers(t *testing.T) {
	t.Parallel()

	m, ledger, timers, carts := newMigratorFixture(t, map[string][]models.ReservationRecord{
		"42":        {blockedRow("acct-line", now.Add(-time.Minute), 1)},
		"guest_abc": {blockedRow("guest-line", now.Add(10*time.Minute), 2)},
	})

	result, err := m.Migrate(context.Background(), guestActor, accountActor)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if result.Outcome != MergeTransferred || !result.PurgedExpired || result.Transferred != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(timers.expired) != 1 || timers.expired[0] != "42" {
		t.Fatalf("expected account expiry cascade, got %v", timers.expired)
	}
	rows := ledger.rows["42"]
	if len(rows) != 1 || rows[0].CartKey != "guest-line" {
		t.Fatalf("expected only the guest row on the account, got %+v", rows)
	}
	if carts.moved != [3]string{"session:s1", "account:42", "42"} {
		t.Fatalf("unexpected cart move %v", carts.moved)
	}
	if !timers.handoff {
		t.Fatal("expected guest timer handed to the account")
	}
}

func TestMigrateTransfersWhenAccountHasNothing(t *testing.T) {
	t.Parallel()

	m, ledger, timers, _ := newMigratorFixture(t, map[string][]models.ReservationRecord{
		"guest_abc": {blockedRow("guest-line", now.Add(10*time.Minute), 2)},
	})

	result, err := m.Migrate(context.Background(), guestActor, accountActor)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if result.Outcome != MergeTransferred || result.PurgedExpired {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(timers.expired) != 0 {
		t.Fatal("no expiry cascade expected")
	}
	if ledger.transferred != [2]string{"guest_abc", "42"} {
		t.Fatalf("unexpected transfer %v", ledger.transferred)
	}
}

func TestMigrateDiscardKeepsOtherSessionsOfSameGuest(t *testing.T) {
	t.Parallel()

	m, ledger, timers, carts := newMigratorFixture(t, map[string][]models.ReservationRecord{
		"42": {blockedRow("acct-line", now.Add(5*time.Minute), 1)},
		"guest_abc": {
			blockedRow("guest-line", now.Add(10*time.Minute), 2, 3),
			blockedRow("other-line", now.Add(10*time.Minute), 4),
		},
	})

	result, err := m.Migrate(context.Background(), guestActor, accountActor)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if result.Outcome != MergeDiscarded || result.Released != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	rows := ledger.rows["guest_abc"]
	if len(rows) != 1 || rows[0].CartKey != "other-line" {
		t.Fatalf("expected the other session's row kept, got %+v", rows)
	}
	if len(carts.discarded) != 1 || carts.discarded[0] != guestActor.SessionKey {
		t.Fatalf("only the logging-in session may be discarded, got %v", carts.discarded)
	}
	if len(timers.cancelled) != 0 {
		t.Fatalf("guest timer must keep running for the other session, got %v", timers.cancelled)
	}
}

func TestMigrateTransferLeavesOtherSessionsWithGuest(t *testing.T) {
	t.Parallel()

	m, ledger, _, _ := newMigratorFixture(t, map[string][]models.ReservationRecord{
		"guest_abc": {
			blockedRow("guest-line", now.Add(10*time.Minute), 2),
			blockedRow("other-line", now.Add(10*time.Minute), 4),
		},
	})

	result, err := m.Migrate(context.Background(), guestActor, accountActor)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if result.Transferred != 1 {
		t.Fatalf("expected one row transferred, got %+v", result)
	}
	if rows := ledger.rows["42"]; len(rows) != 1 || rows[0].CartKey != "guest-line" {
		t.Fatalf("unexpected account rows %+v", rows)
	}
	if rows := ledger.rows["guest_abc"]; len(rows) != 1 || rows[0].CartKey != "other-line" {
		t.Fatalf("unexpected guest rows %+v", rows)
	}
}

func TestMigrateRejectsWrongActorKinds(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newMigratorFixture(t, map[string][]models.ReservationRecord{})
	_, err := m.Migrate(context.Background(), accountActor, guestActor)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
