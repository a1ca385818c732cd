package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/internal/availability"
	"github.com/angelmondragon/numberpool/internal/events"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/notices"
	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
	"github.com/angelmondragon/numberpool/pkg/logger"
)

// Service keeps cart lines and their reservations consistent.
type Service interface {
	View(ctx context.Context, actor identity.Actor) (*View, error)
	AddLine(ctx context.Context, actor identity.Actor, input AddLineInput) (*View, error)
	SetNumbers(ctx context.Context, actor identity.Actor, cartKey string, numbers dbtypes.NumberList) (*View, error)
	IncreaseQuantity(ctx context.Context, actor identity.Actor, cartKey string) (*View, error)
	DecreaseQuantity(ctx context.Context, actor identity.Actor, cartKey string, input DecreaseInput) (*View, error)
	RemoveLine(ctx context.Context, actor identity.Actor, cartKey string) (*View, error)
	Empty(ctx context.Context, actor identity.Actor) (*View, error)
	Logout(ctx context.Context, actor identity.Actor) (LogoutResult, error)
	Reconcile(ctx context.Context, actor identity.Actor) error
	HandleTimerExpired(ctx context.Context, event events.TimerExpired) error
	HandleOrderStatusChanged(ctx context.Context, event events.OrderStatusChanged) error
}

type ServiceParams struct {
	Lines        LineRepository
	Ledger       Ledger
	Availability availabilityChecker
	Limits       limitLoader
	Timers       Timers
	Bus          linePublisher
	Logger       *logger.Logger
}

type service struct {
	lines  LineRepository
	ledger Ledger
	avail  availabilityChecker
	limits limitLoader
	timers Timers
	bus    linePublisher
	logg   *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Lines == nil:
		return nil, fmt.Errorf("cart line repository required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("reservation ledger required")
	case p.Availability == nil:
		return nil, fmt.Errorf("availability engine required")
	case p.Limits == nil:
		return nil, fmt.Errorf("limit loader required")
	case p.Timers == nil:
		return nil, fmt.Errorf("timers required")
	case p.Bus == nil:
		return nil, fmt.Errorf("event bus required")
	}
	return &service{
		lines:  p.Lines,
		ledger: p.Ledger,
		avail:  p.Availability,
		limits: p.Limits,
		timers: p.Timers,
		bus:    p.Bus,
		logg:   p.Logger,
	}, nil
}

// Register subscribes the cart to expiry cascades and checkouts.
func Register(bus *events.Bus, svc Service) {
	bus.OnTimerExpired(svc.HandleTimerExpired)
	bus.OnOrderStatusChanged(svc.HandleOrderStatusChanged)
}

// View checks the countdown, which may expire the cart, and returns the lines.
func (s *service) View(ctx context.Context, actor identity.Actor) (*View, error) {
	status, err := s.timers.Status(ctx, actor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reservation timer")
	}
	if status.State == enums.TimerStateExpired {
		notices.FromContext(ctx).Errorf("Your reservation time ran out and your numbers were released.")
	}
	lines, err := s.lines.ListBySession(ctx, actor.SessionKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	view := &View{Lines: make([]Line, 0, len(lines)), Timer: status}
	for _, line := range lines {
		view.Lines = append(view.Lines, lineFromModel(line))
	}
	return view, nil
}

// AddLine validates every requested number and writes the line with its
// reservation, or nothing at all.
func (s *service) AddLine(ctx context.Context, actor identity.Actor, input AddLineInput) (*View, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := s.expireIfDue(ctx, actor); err != nil {
		return nil, err
	}
	if _, err := s.limits.GetLimit(ctx, input.ParentProductID); err != nil {
		return nil, err
	}
	if len(input.Numbers) > 0 {
		if err := s.checkClaimable(ctx, actor, input.ParentProductID, input.Numbers, ""); err != nil {
			return nil, err
		}
	}

	line := &models.CartLine{
		CartKey:         uuid.NewString(),
		SessionKey:      actor.SessionKey,
		ActorID:         actor.ID,
		ParentProductID: input.ParentProductID,
		ProductID:       input.ProductID,
		VariationID:     input.VariationID,
		Quantity:        input.Quantity,
		Numbers:         append(dbtypes.NumberList{}, input.Numbers...),
	}
	if err := s.lines.Create(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart line")
	}
	if len(line.Numbers) > 0 {
		if err := s.claim(ctx, actor, line); err != nil {
			if _, delErr := s.lines.Delete(ctx, line.CartKey); delErr != nil {
				err = multierr.Append(err, delErr)
			}
			return nil, err
		}
	}
	notices.FromContext(ctx).Successf("Added to your cart.")

	if err := s.Reconcile(ctx, actor); err != nil {
		return nil, err
	}
	return s.View(ctx, actor)
}

// SetNumbers replaces the numbers assigned to an existing line.
func (s *service) SetNumbers(ctx context.Context, actor identity.Actor, cartKey string, numbers dbtypes.NumberList) (*View, error) {
	if numbers.HasDuplicates() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "numbers must be unique")
	}
	if err := s.expireIfDue(ctx, actor); err != nil {
		return nil, err
	}
	line, err := s.findLine(ctx, actor, cartKey)
	if err != nil {
		return nil, err
	}
	if len(numbers) > line.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "more numbers than quantity")
	}

	if len(numbers) == 0 {
		if _, err := s.ledger.Release(ctx, cartKey, reservations.ReasonQuantityDecrease); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release numbers")
		}
		released := line.Numbers
		line.Numbers = dbtypes.NumberList{}
		if err := s.lines.Save(ctx, line); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart line")
		}
		s.publish(ctx, actor, line, released, events.LineReleased)
		return s.View(ctx, actor)
	}

	if err := s.checkClaimable(ctx, actor, line.ParentProductID, numbers, cartKey); err != nil {
		return nil, err
	}
	previous := line.Numbers
	line.Numbers = append(dbtypes.NumberList{}, numbers...)
	if err := s.claim(ctx, actor, line); err != nil {
		return nil, err
	}
	if err := s.lines.Save(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart line")
	}
	if dropped := previous.Without(numbers); len(dropped) > 0 {
		s.publish(ctx, actor, line, dropped, events.LineReleased)
	}

	if err := s.Reconcile(ctx, actor); err != nil {
		return nil, err
	}
	return s.View(ctx, actor)
}

// IncreaseQuantity adds one empty slot. A line that still has an empty slot
// must have it filled first.
func (s *service) IncreaseQuantity(ctx context.Context, actor identity.Actor, cartKey string) (*View, error) {
	line, err := s.findLine(ctx, actor, cartKey)
	if err != nil {
		return nil, err
	}
	if line.EmptySlots() > 0 {
		msg := "Please choose a number for the empty slot before adding another."
		notices.FromContext(ctx).Errorf("%s", msg)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, msg)
	}
	line.Quantity++
	if err := s.lines.Save(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart line")
	}
	if err := s.Reconcile(ctx, actor); err != nil {
		return nil, err
	}
	return s.View(ctx, actor)
}

// DecreaseQuantity drops empty slots freely. Assigned numbers are only given
// up when the caller names them; otherwise the quantity stays unchanged.
func (s *service) DecreaseQuantity(ctx context.Context, actor identity.Actor, cartKey string, input DecreaseInput) (*View, error) {
	line, err := s.findLine(ctx, actor, cartKey)
	if err != nil {
		return nil, err
	}
	count := input.Quantity
	if count <= 0 {
		count = 1
	}
	if count > line.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot remove more units than the line holds")
	}

	fromEmpty := min(count, line.EmptySlots())
	needed := count - fromEmpty
	if needed > 0 && len(input.Release) == 0 {
		notices.FromContext(ctx).Infof("Choose which %d number(s) to release before lowering the quantity.", needed)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "choose the numbers to release").
			WithDetails(map[string]any{"release": needed, "numbers": []int(line.Numbers)})
	}
	if len(input.Release) != needed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("release exactly %d assigned number(s)", needed))
	}
	if input.Release.HasDuplicates() || len(line.Numbers.Without(input.Release)) != len(line.Numbers)-needed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "released numbers must belong to the line")
	}

	if needed > 0 {
		if _, err := s.ledger.ReleaseNumbers(ctx, cartKey, input.Release, reservations.ReasonQuantityDecrease); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release numbers")
		}
		line.Numbers = line.Numbers.Without(input.Release)
		s.publish(ctx, actor, line, input.Release, events.LineReleased)
	}
	line.Quantity -= count
	if line.Quantity == 0 {
		if err := s.dropLine(ctx, actor, *line, reservations.ReasonQuantityDecrease); err != nil {
			return nil, err
		}
	} else if err := s.lines.Save(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart line")
	}
	s.cancelIfIdle(ctx, actor)
	return s.View(ctx, actor)
}

// RemoveLine deletes a line and its reservation. Removing an unknown line is
// a no-op.
func (s *service) RemoveLine(ctx context.Context, actor identity.Actor, cartKey string) (*View, error) {
	line, err := s.lines.Find(ctx, actor.SessionKey, cartKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
	}
	if line != nil {
		if err := s.dropLine(ctx, actor, *line, reservations.ReasonLineRemoved); err != nil {
			return nil, err
		}
		notices.FromContext(ctx).Successf("Removed from your cart.")
		s.cancelIfIdle(ctx, actor)
	}
	return s.View(ctx, actor)
}

// Empty clears the session's cart and collapses the countdown.
func (s *service) Empty(ctx context.Context, actor identity.Actor) (*View, error) {
	if _, _, err := s.clear(ctx, actor, reservations.ReasonCartEmptied); err != nil {
		return nil, err
	}
	return s.View(ctx, actor)
}

// Logout empties the whole cart when it holds any limited-number line.
func (s *service) Logout(ctx context.Context, actor identity.Actor) (LogoutResult, error) {
	lines, err := s.lines.ListBySession(ctx, actor.SessionKey)
	if err != nil {
		return LogoutResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	limited := false
	for _, line := range lines {
		_, err := s.limits.GetLimit(ctx, line.ParentProductID)
		if err == nil {
			limited = true
			break
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return LogoutResult{}, err
		}
	}
	if !limited {
		return LogoutResult{}, nil
	}

	removed, released, err := s.clear(ctx, actor, reservations.ReasonLogout)
	if err != nil {
		return LogoutResult{}, err
	}
	notices.FromContext(ctx).Infof("Your cart was emptied when you logged out.")
	return LogoutResult{Cleared: true, RemovedLines: removed, ReleasedNumbers: released}, nil
}

func (s *service) clear(ctx context.Context, actor identity.Actor, reason reservations.ReleaseReason) (int64, int, error) {
	lines, err := s.lines.ListBySession(ctx, actor.SessionKey)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	var (
		errs     error
		released int
	)
	for _, line := range lines {
		rows, err := s.ledger.Release(ctx, line.CartKey, reason)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release %s: %w", line.CartKey, err))
			continue
		}
		for _, row := range rows {
			released += len(row.Numbers)
		}
		s.publish(ctx, actor, &line, line.Numbers, events.LineRemoved)
	}
	if errs != nil {
		return 0, released, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "release cart reservations")
	}
	removed, err := s.lines.DiscardSession(ctx, actor.SessionKey)
	if err != nil {
		return 0, released, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "empty cart")
	}
	if err := s.timers.Cancel(ctx, actor); err != nil {
		return removed, released, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel reservation timer")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"actor_id":         actor.ID,
			"reason":           string(reason),
			"removed_lines":    removed,
			"released_numbers": released,
		})
		s.logg.Info(logCtx, "cart emptied")
	}
	return removed, released, nil
}

// Reconcile merges duplicate lines and trims every limited product back to
// its per-order maximum.
func (s *service) Reconcile(ctx context.Context, actor identity.Actor) error {
	lines, err := s.lines.ListBySession(ctx, actor.SessionKey)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	lines, err = s.dropOrdered(ctx, lines)
	if err != nil {
		return err
	}
	lines, err = s.mergeDuplicates(ctx, actor, lines)
	if err != nil {
		return err
	}
	return s.enforceGroupQuota(ctx, actor, lines)
}

type lineIdentity struct {
	productID   int64
	variationID int64
}

// mergeDuplicates folds later lines for the same product and variation into
// the first one. The discarded line's reservation is released before the
// kept line claims the union.
func (s *service) mergeDuplicates(ctx context.Context, actor identity.Actor, lines []models.CartLine) ([]models.CartLine, error) {
	kept := make([]models.CartLine, 0, len(lines))
	index := make(map[lineIdentity]int)
	for _, line := range lines {
		id := lineIdentity{productID: line.ProductID, variationID: line.VariationID}
		at, seen := index[id]
		if !seen {
			index[id] = len(kept)
			kept = append(kept, line)
			continue
		}

		target := &kept[at]
		snapshot := line
		if _, err := s.ledger.Release(ctx, line.CartKey, reservations.ReasonMerged); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release merged line")
		}
		if _, err := s.lines.Delete(ctx, line.CartKey); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete merged line")
		}
		s.publish(ctx, actor, &line, line.Numbers, events.LineRemoved)

		previous, quantity := target.Numbers, target.Quantity
		target.Quantity += line.Quantity
		target.Numbers = target.Numbers.Union(line.Numbers)
		if len(target.Numbers) > len(previous) {
			if err := s.claim(ctx, actor, target); err != nil {
				target.Numbers, target.Quantity = previous, quantity
				notices.FromContext(ctx).Errorf("Some numbers could not be kept while merging your cart lines.")
				return nil, multierr.Append(err, s.restoreLine(ctx, actor, snapshot))
			}
		}
		if err := s.lines.Save(ctx, target); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save merged line")
		}
		notices.FromContext(ctx).Infof("Duplicate cart lines were combined.")
	}
	return kept, nil
}

// restoreLine puts back a line that was folded into another before the
// combined claim failed.
func (s *service) restoreLine(ctx context.Context, actor identity.Actor, line models.CartLine) error {
	if err := s.lines.Create(ctx, &line); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore merged line")
	}
	if len(line.Numbers) == 0 {
		return nil
	}
	return s.claim(ctx, actor, &line)
}

// dropOrdered removes lines whose reservation already belongs to an order.
// Their numbers were bought, so they neither merge nor count toward quota.
func (s *service) dropOrdered(ctx context.Context, lines []models.CartLine) ([]models.CartLine, error) {
	live := lines[:0:0]
	for _, line := range lines {
		if len(line.Numbers) > 0 {
			record, err := s.ledger.FindByCartKey(ctx, line.CartKey)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load line reservation")
			}
			if record != nil && record.Status == enums.ReservationStatusOrdered {
				if _, err := s.lines.Delete(ctx, line.CartKey); err != nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete ordered line")
				}
				continue
			}
		}
		live = append(live, line)
	}
	return live, nil
}

// enforceGroupQuota reduces quantities from the last line backward until the
// lines of each limited product fit its maximum. Empty slots go first, then
// the most recently assigned numbers.
func (s *service) enforceGroupQuota(ctx context.Context, actor identity.Actor, lines []models.CartLine) error {
	groups := make(map[int64][]int)
	var order []int64
	for i, line := range lines {
		if _, ok := groups[line.ParentProductID]; !ok {
			order = append(order, line.ParentProductID)
		}
		groups[line.ParentProductID] = append(groups[line.ParentProductID], i)
	}

	for _, parent := range order {
		limit, err := s.limits.GetLimit(ctx, parent)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if limit.MaxQuantity <= 0 {
			continue
		}
		idx := groups[parent]
		total := 0
		for _, i := range idx {
			total += lines[i].Quantity
		}
		excess := total - limit.MaxQuantity
		if excess <= 0 {
			continue
		}

		for j := len(idx) - 1; j >= 0 && excess > 0; j-- {
			line := &lines[idx[j]]
			cut := min(excess, line.Quantity)
			if drop := cut - min(cut, line.EmptySlots()); drop > 0 {
				keep := len(line.Numbers) - drop
				dropped := append(dbtypes.NumberList{}, line.Numbers[keep:]...)
				if _, err := s.ledger.ReleaseNumbers(ctx, line.CartKey, dropped, reservations.ReasonQuotaTrim); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release trimmed numbers")
				}
				line.Numbers = append(dbtypes.NumberList{}, line.Numbers[:keep]...)
				s.publish(ctx, actor, line, dropped, events.LineReleased)
			}
			line.Quantity -= cut
			excess -= cut
			if line.Quantity == 0 {
				if err := s.dropLine(ctx, actor, *line, reservations.ReasonQuotaTrim); err != nil {
					return err
				}
				continue
			}
			if err := s.lines.Save(ctx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save trimmed line")
			}
		}

		held, err := s.ledger.CountForActor(ctx, actor.ID, parent, "")
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count held numbers")
		}
		notices.FromContext(ctx).Infof(
			"The quantity was reduced to the maximum of %d per order. You already hold %d of %d numbers for this product.",
			limit.MaxQuantity, held, limit.MaxQuantity,
		)
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"actor_id":          actor.ID,
				"parent_product_id": parent,
				"max_quantity":      limit.MaxQuantity,
				"trimmed":           total - limit.MaxQuantity,
			})
			s.logg.Info(logCtx, "cart quantity trimmed to product maximum")
		}
	}
	return nil
}

// HandleTimerExpired drops the cart lines of an actor whose countdown ran out.
func (s *service) HandleTimerExpired(ctx context.Context, event events.TimerExpired) error {
	removed, err := s.lines.DeleteActorLines(ctx, event.Actor.ID)
	if err != nil {
		return fmt.Errorf("remove expired cart lines: %w", err)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"actor_id":      event.Actor.ID,
			"removed_lines": removed,
		})
		s.logg.Info(logCtx, "expired cart lines removed")
	}
	return nil
}

// HandleOrderStatusChanged removes the checked-out lines once their order is
// created. The reservations stay with the order.
func (s *service) HandleOrderStatusChanged(ctx context.Context, event events.OrderStatusChanged) error {
	if event.OldStatus != "" {
		return nil
	}
	var (
		removed int64
		errs    error
	)
	for _, item := range event.Items {
		if item.CartKey == "" {
			continue
		}
		n, err := s.lines.Delete(ctx, item.CartKey)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remove ordered line %s: %w", item.CartKey, err))
			continue
		}
		removed += n
	}
	if s.logg != nil && removed > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":      event.OrderID,
			"actor_id":      event.ActorID,
			"removed_lines": removed,
		})
		s.logg.Info(logCtx, "ordered cart lines removed")
	}
	return errs
}

// checkClaimable rejects the batch when any number is not free for this line.
func (s *service) checkClaimable(ctx context.Context, actor identity.Actor, parentProductID int64, numbers dbtypes.NumberList, cartKey string) error {
	verdicts, err := s.avail.CheckNumbers(ctx, availability.CheckInput{
		ParentProductID:  parentProductID,
		Numbers:          numbers,
		Actor:            actor,
		ExcludingCartKey: cartKey,
	})
	if err != nil {
		return err
	}

	var rejected []availability.Verdict
	code := pkgerrors.CodeQuota
	for _, v := range verdicts {
		if v.Available && (v.Status == enums.AvailabilityAvailable || v.CartKey == cartKey) {
			continue
		}
		rejected = append(rejected, v)
		notices.FromContext(ctx).Errorf("%s", v.Message())
		switch v.Status {
		case enums.AvailabilityOutOfRange:
			code = pkgerrors.CodeValidation
		case enums.AvailabilityMaxQuantity:
		default:
			if code != pkgerrors.CodeValidation {
				code = pkgerrors.CodeUnavailable
			}
		}
	}
	if len(rejected) == 0 {
		return nil
	}
	return pkgerrors.New(code, rejected[0].Message()).WithDetails(rejected)
}

// claim writes the line's numbers and restarts the countdown. A claim that
// lost a race reports the conflicting numbers.
func (s *service) claim(ctx context.Context, actor identity.Actor, line *models.CartLine) error {
	productType := enums.ProductTypeSimple
	if line.VariationID != 0 {
		productType = enums.ProductTypeVariation
	}
	res, err := s.ledger.Claim(ctx, reservations.ClaimInput{
		CartKey:         line.CartKey,
		ActorID:         actor.ID,
		ParentProductID: line.ParentProductID,
		ProductID:       line.LineProductID(),
		ProductType:     productType,
		Numbers:         line.Numbers,
		ExpiresAt:       s.timers.Deadline(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim numbers")
	}
	if !res.Applied {
		notices.FromContext(ctx).Errorf("Number(s) %s were just reserved by another shopper. Please choose different numbers.", res.Conflicts)
		return pkgerrors.New(pkgerrors.CodeConflict, "numbers were reserved by another cart").
			WithDetails(map[string]any{"conflicts": []int(res.Conflicts)})
	}
	s.publish(ctx, actor, line, line.Numbers, events.LineClaimed)
	return nil
}

func (s *service) dropLine(ctx context.Context, actor identity.Actor, line models.CartLine, reason reservations.ReleaseReason) error {
	if _, err := s.lines.Delete(ctx, line.CartKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart line")
	}
	if _, err := s.ledger.Release(ctx, line.CartKey, reason); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release cart line")
	}
	s.publish(ctx, actor, &line, line.Numbers, events.LineRemoved)
	return nil
}

func (s *service) findLine(ctx context.Context, actor identity.Actor, cartKey string) (*models.CartLine, error) {
	line, err := s.lines.Find(ctx, actor.SessionKey, cartKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
	}
	if line == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return line, nil
}

// expireIfDue runs the opportunistic countdown check before a mutation.
func (s *service) expireIfDue(ctx context.Context, actor identity.Actor) error {
	status, err := s.timers.Status(ctx, actor)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reservation timer")
	}
	if status.State == enums.TimerStateExpired {
		notices.FromContext(ctx).Errorf("Your reservation time ran out and your numbers were released.")
	}
	return nil
}

func (s *service) cancelIfIdle(ctx context.Context, actor identity.Actor) {
	if _, err := s.timers.CancelIfIdle(ctx, actor); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "actor_id", actor.ID), "cancel idle reservation timer failed: "+err.Error())
	}
}

func (s *service) publish(ctx context.Context, actor identity.Actor, line *models.CartLine, numbers dbtypes.NumberList, change events.LineChange) {
	err := s.bus.PublishCartLineChanged(ctx, events.CartLineChanged{
		Actor:           actor,
		CartKey:         line.CartKey,
		ParentProductID: line.ParentProductID,
		Numbers:         append(dbtypes.NumberList{}, numbers...),
		Change:          change,
	})
	if err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"actor_id": actor.ID,
			"cart_key": line.CartKey,
			"change":   string(change),
		})
		s.logg.Error(logCtx, "cart line event handler failed", err)
	}
}
