package cart

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/internal/availability"
	"github.com/angelmondragon/numberpool/internal/events"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/notices"
	"github.com/angelmondragon/numberpool/internal/products"
	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/internal/timer"
	"github.com/angelmondragon/numberpool/pkg/clock"
	"github.com/angelmondragon/numberpool/pkg/db/dbtest"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/outbox"
)

const (
	cappedProduct   int64 = 10
	uncappedProduct int64 = 20
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

var (
	shopperX = identity.Actor{ID: "guest_x", Kind: enums.ActorKindGuest, SessionKey: "session:x"}
	shopperY = identity.Actor{ID: "guest_y", Kind: enums.ActorKindGuest, SessionKey: "session:y"}
)

type stubTimers struct {
	cancelled []string
	idle      []string
}

func (s *stubTimers) Status(ctx context.Context, actor identity.Actor) (timer.Status, error) {
	return timer.Status{State: enums.TimerStateNone}, nil
}

func (s *stubTimers) Deadline() time.Time {
	return baseTime.Add(15 * time.Minute)
}

func (s *stubTimers) Cancel(ctx context.Context, actor identity.Actor) error {
	s.cancelled = append(s.cancelled, actor.ID)
	return nil
}

func (s *stubTimers) CancelIfIdle(ctx context.Context, actor identity.Actor) (bool, error) {
	s.idle = append(s.idle, actor.ID)
	return true, nil
}

type recordingBus struct {
	changes []events.CartLineChanged
}

func (r *recordingBus) PublishCartLineChanged(ctx context.Context, event events.CartLineChanged) error {
	r.changes = append(r.changes, event)
	return nil
}

type expirerFunc func(ctx context.Context, actor identity.Actor) error

func (f expirerFunc) ExpireActor(ctx context.Context, actor identity.Actor) error {
	return f(ctx, actor)
}

type fixture struct {
	svc    Service
	conn   *gorm.DB
	repo   *Repository
	store  *reservations.Store
	timers *stubTimers
	bus    *recordingBus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t, "cart")
	dbtest.SeedLimit(t, conn, models.ProductLimit{ProductID: cappedProduct, Enabled: true, Start: 1, End: 5, MaxQuantity: 2})
	dbtest.SeedLimit(t, conn, models.ProductLimit{ProductID: uncappedProduct, Enabled: true, Start: 1, End: 50})

	clk := clock.NewFixed(baseTime)
	store, err := reservations.NewStore(reservations.StoreParams{
		DB:     conn,
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
		Clock:  clk,
	})
	require.NoError(t, err)

	repo := NewRepository(conn)
	limits := products.NewRepository(conn)
	engine, err := availability.NewEngine(availability.Params{
		Limits: limits,
		Ledger: store,
		Cart:   repo,
		Expirer: expirerFunc(func(ctx context.Context, actor identity.Actor) error {
			_, err := store.DeleteBlockedForActor(ctx, actor.ID, reservations.ReasonExpired)
			return err
		}),
		Clock: clk,
	})
	require.NoError(t, err)

	f := fixture{conn: conn, repo: repo, store: store, timers: &stubTimers{}, bus: &recordingBus{}}
	f.svc, err = NewService(ServiceParams{
		Lines:        repo,
		Ledger:       store,
		Availability: engine,
		Limits:       limits,
		Timers:       f.timers,
		Bus:          f.bus,
	})
	require.NoError(t, err)
	return f
}

func (f fixture) blockedNumbers(t *testing.T, cartKey string) dbtypes.NumberList {
	t.Helper()
	var row models.ReservationRecord
	err := f.conn.Where("cart_key = ? AND status = ?", cartKey, enums.ReservationStatusBlocked).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	require.NoError(t, err)
	return row.Numbers
}

func addLine(t *testing.T, f fixture, actor identity.Actor, in AddLineInput) *View {
	t.Helper()
	view, err := f.svc.AddLine(context.Background(), actor, in)
	require.NoError(t, err)
	return view
}

func TestAddLineClaimsNumbers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	view := addLine(t, f, shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{3}})
	require.Len(t, view.Lines, 1)
	assert.Equal(t, []int{3}, view.Lines[0].Numbers)
	assert.Equal(t, dbtypes.NumberList{3}, f.blockedNumbers(t, view.Lines[0].CartKey))
	require.NotEmpty(t, f.bus.changes)
	assert.Equal(t, events.LineClaimed, f.bus.changes[0].Change)
}

func TestAddLineRejectsNumberHeldElsewhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	addLine(t, f, shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{3}})

	collector := notices.NewCollector()
	ctx := notices.WithCollector(context.Background(), collector)
	_, err := f.svc.AddLine(ctx, shopperY, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 2, Numbers: dbtypes.NumberList{3, 4}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnavailable))
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.CartLine{}, "actor_id = ?", shopperY.ID))
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.ReservationNumber{}, "number = ?", 4), "no partial write")

	got := collector.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, enums.NoticeError, got[0].Severity)
}

func TestAddLineRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.AddLine(context.Background(), shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{9}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.CartLine{}, ""))
}

func TestIncreaseQuantityRequiresFilledSlots(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	view := addLine(t, f, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1})
	key := view.Lines[0].CartKey

	_, err := f.svc.IncreaseQuantity(context.Background(), shopperX, key)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.SetNumbers(context.Background(), shopperX, key, dbtypes.NumberList{7})
	require.NoError(t, err)

	view, err = f.svc.IncreaseQuantity(context.Background(), shopperX, key)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Lines[0].Quantity)
	assert.Equal(t, 1, view.Lines[0].EmptySlots)
}

func TestDecreaseQuantityNeedsConfirmationForAssignedNumbers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	view := addLine(t, f, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 2, Numbers: dbtypes.NumberList{3}})
	key := view.Lines[0].CartKey
	ctx := context.Background()

	view, err := f.svc.DecreaseQuantity(ctx, shopperX, key, DecreaseInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, view.Lines[0].Quantity, "empty slot dropped without confirmation")
	assert.Equal(t, []int{3}, view.Lines[0].Numbers)

	_, err = f.svc.DecreaseQuantity(ctx, shopperX, key, DecreaseInput{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, dbtypes.NumberList{3}, f.blockedNumbers(t, key), "quantity unchanged until confirmed")

	_, err = f.svc.DecreaseQuantity(ctx, shopperX, key, DecreaseInput{Release: dbtypes.NumberList{8}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	view, err = f.svc.DecreaseQuantity(ctx, shopperX, key, DecreaseInput{Release: dbtypes.NumberList{3}})
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Nil(t, f.blockedNumbers(t, key))
	assert.Contains(t, f.timers.idle, shopperX.ID)
}

func TestReconcileMergesDuplicateLines(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	addLine(t, f, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{1}})
	view := addLine(t, f, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 2, Numbers: dbtypes.NumberList{2}})

	require.Len(t, view.Lines, 1)
	assert.Equal(t, 3, view.Lines[0].Quantity)
	assert.Equal(t, []int{1, 2}, view.Lines[0].Numbers)
	assert.Equal(t, dbtypes.NumberList{1, 2}, f.blockedNumbers(t, view.Lines[0].CartKey))
	assert.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.ReservationRecord{}, ""))
}

func TestReconcileTrimsGroupQuotaFromLastLine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	collector := notices.NewCollector()
	ctx := notices.WithCollector(context.Background(), collector)

	_, err := f.svc.AddLine(ctx, shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{1}})
	require.NoError(t, err)
	view, err := f.svc.AddLine(ctx, shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, VariationID: 11, Quantity: 2, Numbers: dbtypes.NumberList{2}})
	require.NoError(t, err)

	require.Len(t, view.Lines, 2)
	assert.Equal(t, 1, view.Lines[0].Quantity)
	assert.Equal(t, 1, view.Lines[1].Quantity, "excess removed from the last line")
	assert.Equal(t, []int{2}, view.Lines[1].Numbers, "empty slot trimmed before numbers")

	found := false
	for _, n := range collector.Drain() {
		if strings.Contains(n.Message, "You already hold 2 of 2") {
			found = true
		}
	}
	assert.True(t, found, "quota notice must carry the held count")
}

func TestReconcileReleasesNumbersWhenTrimmingAssignedSlots(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	first := addLine(t, f, shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 2, Numbers: dbtypes.NumberList{1, 2}})
	key := first.Lines[0].CartKey

	require.NoError(t, f.conn.Model(&models.ProductLimit{}).Where("product_id = ?", cappedProduct).Update("max_quantity", 1).Error)
	require.NoError(t, f.svc.Reconcile(context.Background(), shopperX))

	view, err := f.svc.View(context.Background(), shopperX)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 1, view.Lines[0].Quantity)
	assert.Equal(t, []int{1}, view.Lines[0].Numbers, "most recently assigned number released first")
	assert.Equal(t, dbtypes.NumberList{1}, f.blockedNumbers(t, key))
}

func TestRemoveLineIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	view := addLine(t, f, shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{4}})
	key := view.Lines[0].CartKey

	for i := 0; i < 2; i++ {
		view, err := f.svc.RemoveLine(context.Background(), shopperX, key)
		require.NoError(t, err)
		assert.Empty(t, view.Lines)
	}
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.ReservationRecord{}, ""))
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.ReservationNumber{}, ""))
}

func TestSetNumbersSwapsReservation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	view := addLine(t, f, shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{1}})
	key := view.Lines[0].CartKey

	_, err := f.svc.SetNumbers(context.Background(), shopperX, key, dbtypes.NumberList{4})
	require.NoError(t, err)
	assert.Equal(t, dbtypes.NumberList{4}, f.blockedNumbers(t, key))

	view = addLine(t, f, shopperY, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{1}})
	require.Len(t, view.Lines, 1)
}

func TestLogoutEmptiesLimitedCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	addLine(t, f, shopperX, AddLineInput{ParentProductID: cappedProduct, ProductID: cappedProduct, Quantity: 2, Numbers: dbtypes.NumberList{1, 2}})

	res, err := f.svc.Logout(context.Background(), shopperX)
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.EqualValues(t, 1, res.RemovedLines)
	assert.Equal(t, 2, res.ReleasedNumbers)
	assert.Equal(t, []string{shopperX.ID}, f.timers.cancelled)
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.ReservationRecord{}, ""))
}

func TestLogoutWithEmptyCartIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.svc.Logout(context.Background(), shopperX)
	require.NoError(t, err)
	assert.False(t, res.Cleared)
	assert.Empty(t, f.timers.cancelled)
}

func TestEmptyCancelsTimer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	addLine(t, f, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{5}})

	view, err := f.svc.Empty(context.Background(), shopperX)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Equal(t, []string{shopperX.ID}, f.timers.cancelled)
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.ReservationNumber{}, ""))
}

func TestHandleTimerExpiredDropsLines(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	addLine(t, f, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1})
	addLine(t, f, shopperY, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1})

	require.NoError(t, f.svc.HandleTimerExpired(context.Background(), events.TimerExpired{Actor: shopperX, ExpiredAt: baseTime}))
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.CartLine{}, "actor_id = ?", shopperX.ID))
	assert.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.CartLine{}, "actor_id = ?", shopperY.ID))
}

func TestAddLineAfterCheckoutKeepsNewNumbers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	first := addLine(t, f, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{3}})
	orderedKey := first.Lines[0].CartKey
	_, err := f.store.FinalizeOrder(ctx, reservations.FinalizeInput{
		CartKey:         orderedKey,
		ParentProductID: uncappedProduct,
		Numbers:         dbtypes.NumberList{3},
		OrderID:         900,
		OrderStatus:     enums.OrderStatusPending,
	})
	require.NoError(t, err)

	view, err := f.svc.AddLine(ctx, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{7}})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, []int{7}, view.Lines[0].Numbers)
	assert.NotEqual(t, orderedKey, view.Lines[0].CartKey)
	assert.Equal(t, dbtypes.NumberList{7}, f.blockedNumbers(t, view.Lines[0].CartKey))
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.CartLine{}, "cart_key = ?", orderedKey))
	assert.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.ReservationRecord{}, "status = ? AND order_id = ?", enums.ReservationStatusOrdered, 900))
}

func TestHandleOrderStatusChangedRemovesOrderedLines(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ordered := addLine(t, f, shopperX, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{3}})
	key := ordered.Lines[0].CartKey
	addLine(t, f, shopperY, AddLineInput{ParentProductID: uncappedProduct, ProductID: uncappedProduct, Quantity: 1, Numbers: dbtypes.NumberList{4}})

	update := events.OrderStatusChanged{
		OrderID:   900,
		ActorID:   shopperX.ID,
		OldStatus: enums.OrderStatusPending,
		NewStatus: enums.OrderStatusProcessing,
		Items:     []models.OrderItem{{ID: 1, OrderID: 900, CartKey: key}},
	}
	require.NoError(t, f.svc.HandleOrderStatusChanged(ctx, update))
	assert.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.CartLine{}, "cart_key = ?", key), "status updates leave the cart alone")

	created := update
	created.OldStatus = ""
	created.NewStatus = enums.OrderStatusPending
	require.NoError(t, f.svc.HandleOrderStatusChanged(ctx, created))
	assert.EqualValues(t, 0, dbtest.CountRows(t, f.conn, &models.CartLine{}, "cart_key = ?", key))
	assert.EqualValues(t, 1, dbtest.CountRows(t, f.conn, &models.CartLine{}, "actor_id = ?", shopperY.ID))
}
