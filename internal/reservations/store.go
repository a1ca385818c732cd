package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/numberpool/pkg/clock"
	"github.com/angelmondragon/numberpool/pkg/db"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
	"github.com/angelmondragon/numberpool/pkg/metrics"
	"github.com/angelmondragon/numberpool/pkg/outbox"
)

var (
	// ErrOrderedElsewhere is returned when a cart line was already finalized
	// for a different order. The first order keeps the numbers.
	ErrOrderedElsewhere = errors.New("reservation already ordered by another order")
	// ErrNoMatchingReservation is returned when neither the cart key nor the
	// product and numbers locate a blocked row.
	ErrNoMatchingReservation = errors.New("no matching blocked reservation")

	errClaimRace = errors.New("claim lost a concurrent insert")
)

// EventEmitter writes domain events in the caller's transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StoreParams wires the ledger dependencies.
type StoreParams struct {
	DB      *gorm.DB
	Outbox  EventEmitter
	Clock   clock.Clock
	Logger  *logger.Logger
	Metrics *metrics.ReservationMetrics
}

// Store is the reservation ledger. Every mutation runs in a transaction that
// also carries the matching outbox event.
type Store struct {
	db      *gorm.DB
	outbox  EventEmitter
	clock   clock.Clock
	logg    *logger.Logger
	metrics *metrics.ReservationMetrics
}

func NewStore(p StoreParams) (*Store, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}
	return &Store{
		db:      p.DB,
		outbox:  p.Outbox,
		clock:   p.Clock,
		logg:    p.Logger,
		metrics: p.Metrics,
	}, nil
}

// WithTx binds the store to an outer transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	if tx == nil {
		return s
	}
	clone := *s
	clone.db = tx
	return &clone
}

// Claim writes numbers for a cart line: an existing blocked row for the
// cart key is updated in place, otherwise a new one is inserted. When another
// live row already holds any requested number the write is skipped and the
// conflicting numbers are reported; no error is returned so reconciliation
// can replay the same claim safely.
func (s *Store) Claim(ctx context.Context, in ClaimInput) (ClaimResult, error) {
	if err := in.validate(); err != nil {
		return ClaimResult{}, err
	}
	numbers := in.Numbers.Union(nil)

	var result ClaimResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findBlockedByCartKey(tx, in.CartKey, in.ParentProductID, true)
		if err != nil {
			return err
		}

		exclude := uuid.Nil
		if existing != nil {
			exclude = existing.ID
		}
		blocking, err := findBlocking(tx, in.ParentProductID, numbers, exclude)
		if err != nil {
			return err
		}
		if len(blocking) > 0 {
			result.Conflicts = intersecting(blocking, numbers)
			return nil
		}

		record := existing
		if record == nil {
			record = &models.ReservationRecord{
				CartKey:         in.CartKey,
				ActorID:         in.ActorID,
				ParentProductID: in.ParentProductID,
				ProductID:       in.ProductID,
				ProductType:     in.productType(),
				Numbers:         numbers,
				Status:          enums.ReservationStatusBlocked,
				CreatedAt:       s.now(),
				ExpiresAt:       in.ExpiresAt.UTC(),
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
			if err := insertNumbers(tx, record.ID, in.ParentProductID, numbers); err != nil {
				return err
			}
		} else {
			added := numbers.Without(record.Numbers)
			removed := record.Numbers.Without(numbers)
			if err := deleteNumbers(tx, record.ID, removed); err != nil {
				return err
			}
			if err := insertNumbers(tx, record.ID, in.ParentProductID, added); err != nil {
				return err
			}
			updates := map[string]any{
				"limit_no":     numbers,
				"user_id":      in.ActorID,
				"product_id":   in.ProductID,
				"product_type": in.productType(),
				"expiry_time":  in.ExpiresAt.UTC(),
			}
			if err := tx.Model(&models.ReservationRecord{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
				return err
			}
			record.Numbers = numbers
			record.ActorID = in.ActorID
			record.ProductID = in.ProductID
			record.ExpiresAt = in.ExpiresAt.UTC()
		}

		result.Record = record
		result.Applied = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationBlocked,
			AggregateType: enums.AggregateReservation,
			AggregateID:   record.ID,
			Actor:         actorRef(record.ActorID),
			Data:          blockedPayload(record),
		})
	})
	if errors.Is(err, errClaimRace) {
		s.metrics.IncConflict()
		conflicts, lookupErr := s.conflictsFor(ctx, in.CartKey, in.ParentProductID, numbers)
		if lookupErr != nil {
			return ClaimResult{}, lookupErr
		}
		s.logClaim(ctx, in, "claim skipped after concurrent insert")
		return ClaimResult{Conflicts: conflicts}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}
	if !result.Applied {
		s.metrics.IncConflict()
		s.logClaim(ctx, in, "claim skipped: numbers held by another reservation")
		return result, nil
	}
	s.metrics.ObserveTransition("block")
	s.logClaim(ctx, in, "numbers blocked")
	return result, nil
}

func (s *Store) conflictsFor(ctx context.Context, cartKey string, parentProductID int64, numbers dbtypes.NumberList) (dbtypes.NumberList, error) {
	tx := s.db.WithContext(ctx)
	existing, err := findBlockedByCartKey(tx, cartKey, parentProductID, false)
	if err != nil {
		return nil, err
	}
	exclude := uuid.Nil
	if existing != nil {
		exclude = existing.ID
	}
	blocking, err := findBlocking(tx, parentProductID, numbers, exclude)
	if err != nil {
		return nil, err
	}
	return intersecting(blocking, numbers), nil
}

// FindBlocking returns live rows of the product holding any of numbers.
// Membership is decided per number, never by substring.
func (s *Store) FindBlocking(ctx context.Context, parentProductID int64, numbers dbtypes.NumberList) ([]models.ReservationRecord, error) {
	return findBlocking(s.db.WithContext(ctx), parentProductID, numbers, uuid.Nil)
}

// FindByCartKey returns the newest row owned by the cart line.
func (s *Store) FindByCartKey(ctx context.Context, cartKey string) (*models.ReservationRecord, error) {
	var record models.ReservationRecord
	err := s.db.WithContext(ctx).
		Where("cart_key = ?", cartKey).
		Order("time DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CountForActor sums the numbers an actor blocks for a product, skipping the
// line identified by excludingCartKey when set.
func (s *Store) CountForActor(ctx context.Context, actorID string, parentProductID int64, excludingCartKey string) (int, error) {
	query := s.db.WithContext(ctx).
		Model(&models.ReservationNumber{}).
		Joins("JOIN limit_reservations r ON r.id = limit_reservation_numbers.reservation_id").
		Where("r.user_id = ? AND r.parent_product_id = ? AND r.status = ?", actorID, parentProductID, enums.ReservationStatusBlocked)
	if excludingCartKey != "" {
		query = query.Where("r.cart_key <> ?", excludingCartKey)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListBlockedForActor returns the actor's live blocked rows, oldest first.
func (s *Store) ListBlockedForActor(ctx context.Context, actorID string) ([]models.ReservationRecord, error) {
	var rows []models.ReservationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", actorID, enums.ReservationStatusBlocked).
		Order("time ASC").
		Find(&rows).Error
	return rows, err
}

// ListForProduct returns every live row of a product.
func (s *Store) ListForProduct(ctx context.Context, parentProductID int64) ([]models.ReservationRecord, error) {
	var rows []models.ReservationRecord
	err := s.db.WithContext(ctx).
		Where("parent_product_id = ?", parentProductID).
		Order("time ASC").
		Find(&rows).Error
	return rows, err
}

// ListByOrder returns rows finalized for the order.
func (s *Store) ListByOrder(ctx context.Context, orderID int64) ([]models.ReservationRecord, error) {
	var rows []models.ReservationRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("time ASC").
		Find(&rows).Error
	return rows, err
}

// ListExpiredActors returns actors holding blocked rows whose deadline passed.
func (s *Store) ListExpiredActors(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var actors []string
	query := s.db.WithContext(ctx).
		Model(&models.ReservationRecord{}).
		Where("status = ? AND expiry_time < ?", enums.ReservationStatusBlocked, now.UTC()).
		Order("user_id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Distinct().Pluck("user_id", &actors).Error
	return actors, err
}

// TransferOwner rewrites ownership of the blocked rows of the given cart lines
// from one actor to another. Rows of other lines stay with fromActorID.
func (s *Store) TransferOwner(ctx context.Context, fromActorID, toActorID string, cartKeys []string) (int64, error) {
	if fromActorID == "" || toActorID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "both actor ids required")
	}
	if fromActorID == toActorID || len(cartKeys) == 0 {
		return 0, nil
	}
	var moved int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ReservationRecord{}).
			Where("user_id = ? AND status = ? AND cart_key IN ?", fromActorID, enums.ReservationStatusBlocked, cartKeys).
			Update("user_id", toActorID)
		if res.Error != nil {
			return res.Error
		}
		moved = res.RowsAffected
		if moved == 0 {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationTransfered,
			AggregateType: enums.AggregateReservation,
			AggregateKey:  toActorID,
			Actor:         actorRef(toActorID),
			Data:          transferredPayload(fromActorID, toActorID, moved),
		})
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"from_actor_id": fromActorID,
			"actor_id":      toActorID,
			"rows":          moved,
		})
		s.logg.Info(logCtx, "reservations transferred")
	}
	return moved, nil
}

// PurgeStale deletes the actor's blocked rows whose cart key is not among
// liveCartKeys.
func (s *Store) PurgeStale(ctx context.Context, actorID string, liveCartKeys []string) ([]models.ReservationRecord, error) {
	return s.releaseWhere(ctx, ReasonStale, func(tx *gorm.DB) *gorm.DB {
		q := tx.Where("user_id = ? AND status = ?", actorID, enums.ReservationStatusBlocked)
		if len(liveCartKeys) > 0 {
			q = q.Where("cart_key NOT IN ?", liveCartKeys)
		}
		return q
	})
}

// Release deletes the blocked row owned by a cart line. Releasing an absent
// line is a no-op.
func (s *Store) Release(ctx context.Context, cartKey string, reason ReleaseReason) ([]models.ReservationRecord, error) {
	return s.releaseWhere(ctx, reason, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("cart_key = ? AND status = ?", cartKey, enums.ReservationStatusBlocked)
	})
}

// ReleaseRecord deletes a single blocked row by id.
func (s *Store) ReleaseRecord(ctx context.Context, id uuid.UUID, reason ReleaseReason) ([]models.ReservationRecord, error) {
	return s.releaseWhere(ctx, reason, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ? AND status = ?", id, enums.ReservationStatusBlocked)
	})
}

// ReleaseCartKeys deletes the actor's blocked rows owned by the given cart
// lines.
func (s *Store) ReleaseCartKeys(ctx context.Context, actorID string, cartKeys []string, reason ReleaseReason) ([]models.ReservationRecord, error) {
	if len(cartKeys) == 0 {
		return nil, nil
	}
	return s.releaseWhere(ctx, reason, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ? AND status = ? AND cart_key IN ?", actorID, enums.ReservationStatusBlocked, cartKeys)
	})
}

// DeleteBlockedForActor deletes every blocked row the actor holds.
func (s *Store) DeleteBlockedForActor(ctx context.Context, actorID string, reason ReleaseReason) ([]models.ReservationRecord, error) {
	return s.releaseWhere(ctx, reason, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ? AND status = ?", actorID, enums.ReservationStatusBlocked)
	})
}

// ReleaseNumbers drops specific numbers from a line's blocked row. A row left
// without numbers is deleted.
func (s *Store) ReleaseNumbers(ctx context.Context, cartKey string, numbers dbtypes.NumberList, reason ReleaseReason) (*models.ReservationRecord, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var updated *models.ReservationRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := findBlockedByCartKey(tx, cartKey, 0, true)
		if err != nil || record == nil {
			return err
		}
		dropped := numbers.Union(nil)
		kept := record.Numbers.Without(dropped)
		dropped = record.Numbers.Without(kept)
		if len(dropped) == 0 {
			updated = record
			return nil
		}
		if _, err := Transition(record.Status, reason.event()); err != nil {
			return err
		}
		if len(kept) == 0 {
			return s.deleteAndEmit(ctx, tx, []models.ReservationRecord{*record}, reason)
		}
		if err := deleteNumbers(tx, record.ID, dropped); err != nil {
			return err
		}
		if err := tx.Model(&models.ReservationRecord{}).Where("id = ?", record.ID).Update("limit_no", kept).Error; err != nil {
			return err
		}
		partial := *record
		partial.Numbers = dropped
		if err := s.emitReleased(ctx, tx, partial, reason); err != nil {
			return err
		}
		record.Numbers = kept
		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(reason.event()))
	return updated, nil
}

// ExtendExpiry moves the deadline of every blocked row the actor holds.
func (s *Store) ExtendExpiry(ctx context.Context, actorID string, expiresAt time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.ReservationRecord{}).
		Where("user_id = ? AND status = ?", actorID, enums.ReservationStatusBlocked).
		Update("expiry_time", expiresAt.UTC())
	return res.RowsAffected, res.Error
}

// FinalizeOrder moves a blocked row to ordered. The row is located by cart
// key first and, when the key is unknown, by the first blocked row of the
// product holding exactly the same numbers.
func (s *Store) FinalizeOrder(ctx context.Context, in FinalizeInput) (FinalizeResult, error) {
	if in.OrderID == 0 {
		return FinalizeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var result FinalizeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.CartKey != "" {
			record, err := findByCartKeyLocked(tx, in.CartKey, in.ParentProductID)
			if err != nil {
				return err
			}
			if record != nil {
				result.MatchedBy = MatchedByCartKey
				if record.Status == enums.ReservationStatusOrdered {
					if record.OrderID == nil || *record.OrderID != in.OrderID {
						result.Record = record
						return ErrOrderedElsewhere
					}
					if err := updateOrderStatus(tx, record.ID, in.OrderStatus); err != nil {
						return err
					}
					record.OrderStatus = &in.OrderStatus
					result.Record = record
					return nil
				}
				return s.finalize(ctx, tx, record, in, &result)
			}
		}

		if in.ParentProductID == 0 || len(in.Numbers) == 0 {
			return ErrNoMatchingReservation
		}
		var candidates []models.ReservationRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("parent_product_id = ? AND status = ?", in.ParentProductID, enums.ReservationStatusBlocked).
			Order("time ASC").
			Find(&candidates).Error
		if err != nil {
			return err
		}
		for i := range candidates {
			if sameNumbers(candidates[i].Numbers, in.Numbers) {
				result.MatchedBy = MatchedByNumbers
				return s.finalize(ctx, tx, &candidates[i], in, &result)
			}
		}
		return ErrNoMatchingReservation
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Store) finalize(ctx context.Context, tx *gorm.DB, record *models.ReservationRecord, in FinalizeInput, result *FinalizeResult) error {
	next, err := Transition(record.Status, EventOrder)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"status":        next,
		"order_id":      in.OrderID,
		"order_item_id": in.OrderItemID,
		"order_status":  in.OrderStatus,
	}
	if err := tx.Model(&models.ReservationRecord{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
		return err
	}
	record.Status = next
	orderID, itemID, status := in.OrderID, in.OrderItemID, in.OrderStatus
	record.OrderID = &orderID
	record.OrderItemID = &itemID
	record.OrderStatus = &status
	result.Record = record
	result.Finalized = true

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationOrdered,
		AggregateType: enums.AggregateReservation,
		AggregateID:   record.ID,
		Actor:         actorRef(record.ActorID),
		Data:          orderedPayload(record, result.MatchedBy),
	}); err != nil {
		return err
	}
	s.metrics.ObserveTransition(string(EventOrder))
	return nil
}

// UpdateOrderStatus records a later order status on rows already ordered.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status enums.OrderStatus) (int64, error) {
	if _, err := Transition(enums.ReservationStatusOrdered, EventStatusUpdate); err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).
		Model(&models.ReservationRecord{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusOrdered).
		Update("order_status", status)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.metrics.ObserveTransition(string(EventStatusUpdate))
	}
	return res.RowsAffected, nil
}

// DeleteByOrder removes every row attached to the order whatever its status.
func (s *Store) DeleteByOrder(ctx context.Context, orderID int64) ([]models.ReservationRecord, error) {
	return s.releaseWhere(ctx, ReasonOrderCancelled, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("order_id = ?", orderID)
	})
}

func (s *Store) releaseWhere(ctx context.Context, reason ReleaseReason, scope func(tx *gorm.DB) *gorm.DB) ([]models.ReservationRecord, error) {
	var released []models.ReservationRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.ReservationRecord
		if err := scope(tx.Clauses(clause.Locking{Strength: "UPDATE"})).Order("time ASC").Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for _, row := range rows {
			if _, err := Transition(row.Status, reason.event()); err != nil {
				return err
			}
		}
		if err := s.deleteAndEmit(ctx, tx, rows, reason); err != nil {
			return err
		}
		released = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, row := range released {
		s.metrics.ObserveTransition(string(reason.event()))
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"cart_key":          row.CartKey,
				"actor_id":          row.ActorID,
				"parent_product_id": row.ParentProductID,
				"reason":            string(reason),
			})
			s.logg.Info(logCtx, "reservation released")
		}
	}
	return released, nil
}

func (s *Store) deleteAndEmit(ctx context.Context, tx *gorm.DB, rows []models.ReservationRecord, reason ReleaseReason) error {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	if err := tx.Where("reservation_id IN ?", ids).Delete(&models.ReservationNumber{}).Error; err != nil {
		return err
	}
	if err := tx.Where("id IN ?", ids).Delete(&models.ReservationRecord{}).Error; err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.emitReleased(ctx, tx, row, reason); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) emitReleased(ctx context.Context, tx *gorm.DB, row models.ReservationRecord, reason ReleaseReason) error {
	eventType := enums.EventReservationReleased
	if reason == ReasonExpired {
		eventType = enums.EventReservationExpired
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReservation,
		AggregateID:   row.ID,
		Actor:         actorRef(row.ActorID),
		Data:          releasedPayload(row, reason),
	})
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Store) logClaim(ctx context.Context, in ClaimInput, msg string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cart_key":          in.CartKey,
		"actor_id":          in.ActorID,
		"parent_product_id": in.ParentProductID,
		"numbers":           in.Numbers.String(),
	})
	s.logg.Info(logCtx, msg)
}

func findBlockedByCartKey(tx *gorm.DB, cartKey string, parentProductID int64, lock bool) (*models.ReservationRecord, error) {
	query := tx
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	query = query.Where("cart_key = ? AND status = ?", cartKey, enums.ReservationStatusBlocked)
	if parentProductID != 0 {
		query = query.Where("parent_product_id = ?", parentProductID)
	}
	var record models.ReservationRecord
	err := query.Order("time ASC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// findByCartKeyLocked prefers an ordered row over a blocked one so a second
// finalize for the same line sees the first owner.
func findByCartKeyLocked(tx *gorm.DB, cartKey string, parentProductID int64) (*models.ReservationRecord, error) {
	query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("cart_key = ?", cartKey)
	if parentProductID != 0 {
		query = query.Where("parent_product_id = ?", parentProductID)
	}
	var rows []models.ReservationRecord
	if err := query.Order("time ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Status == enums.ReservationStatusOrdered {
			return &rows[i], nil
		}
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}
	return nil, nil
}

func findBlocking(tx *gorm.DB, parentProductID int64, numbers dbtypes.NumberList, exclude uuid.UUID) ([]models.ReservationRecord, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	members := tx.Session(&gorm.Session{NewDB: true}).
		Model(&models.ReservationNumber{}).
		Select("reservation_id").
		Where("parent_product_id = ? AND number IN ?", parentProductID, []int(numbers))

	query := tx.Session(&gorm.Session{NewDB: true}).
		Where("id IN (?)", members).
		Where("status IN ?", []string{string(enums.ReservationStatusBlocked), string(enums.ReservationStatusOrdered)})
	if exclude != uuid.Nil {
		query = query.Where("id <> ?", exclude)
	}
	var rows []models.ReservationRecord
	if err := query.Order("time ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func insertNumbers(tx *gorm.DB, reservationID uuid.UUID, parentProductID int64, numbers dbtypes.NumberList) error {
	if len(numbers) == 0 {
		return nil
	}
	rows := make([]models.ReservationNumber, 0, len(numbers))
	for _, n := range numbers {
		rows = append(rows, models.ReservationNumber{
			ParentProductID: parentProductID,
			Number:          n,
			ReservationID:   reservationID,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return errClaimRace
		}
		return err
	}
	return nil
}

func deleteNumbers(tx *gorm.DB, reservationID uuid.UUID, numbers dbtypes.NumberList) error {
	if len(numbers) == 0 {
		return nil
	}
	return tx.Where("reservation_id = ? AND number IN ?", reservationID, []int(numbers)).
		Delete(&models.ReservationNumber{}).Error
}

func updateOrderStatus(tx *gorm.DB, id uuid.UUID, status enums.OrderStatus) error {
	return tx.Model(&models.ReservationRecord{}).Where("id = ?", id).Update("order_status", status).Error
}

func intersecting(rows []models.ReservationRecord, numbers dbtypes.NumberList) dbtypes.NumberList {
	out := dbtypes.NumberList{}
	for _, n := range numbers {
		for _, row := range rows {
			if row.Numbers.Contains(n) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func sameNumbers(a, b dbtypes.NumberList) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := a.Sorted(), b.Sorted()
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func actorRef(actorID string) *outbox.ActorRef {
	return &outbox.ActorRef{ActorID: actorID, Kind: enums.ActorKindOf(actorID)}
}
