package cart

import (
	"context"
	"time"

	"github.com/angelmondragon/numberpool/internal/availability"
	"github.com/angelmondragon/numberpool/internal/events"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/reservations"
	"github.com/angelmondragon/numberpool/internal/timer"
	"github.com/angelmondragon/numberpool/pkg/db/models"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
)

// LineRepository defines the persistence surface required by the cart service.
type LineRepository interface {
	Create(ctx context.Context, line *models.CartLine) error
	Save(ctx context.Context, line *models.CartLine) error
	Find(ctx context.Context, sessionKey, cartKey string) (*models.CartLine, error)
	ListBySession(ctx context.Context, sessionKey string) ([]models.CartLine, error)
	Delete(ctx context.Context, cartKey string) (int64, error)
	DiscardSession(ctx context.Context, sessionKey string) (int64, error)
	DeleteActorLines(ctx context.Context, actorID string) (int64, error)
}

// Ledger is the write side of the reservation store used by the reconciler.
type Ledger interface {
	Claim(ctx context.Context, in reservations.ClaimInput) (reservations.ClaimResult, error)
	Release(ctx context.Context, cartKey string, reason reservations.ReleaseReason) ([]models.ReservationRecord, error)
	ReleaseNumbers(ctx context.Context, cartKey string, numbers dbtypes.NumberList, reason reservations.ReleaseReason) (*models.ReservationRecord, error)
	CountForActor(ctx context.Context, actorID string, parentProductID int64, excludingCartKey string) (int, error)
	FindByCartKey(ctx context.Context, cartKey string) (*models.ReservationRecord, error)
}

type availabilityChecker interface {
	CheckNumbers(ctx context.Context, in availability.CheckInput) ([]availability.Verdict, error)
}

type limitLoader interface {
	GetLimit(ctx context.Context, productID int64) (*models.ProductLimit, error)
}

// Timers is the slice of the timer coordinator the cart drives.
type Timers interface {
	Status(ctx context.Context, actor identity.Actor) (timer.Status, error)
	Deadline() time.Time
	Cancel(ctx context.Context, actor identity.Actor) error
	CancelIfIdle(ctx context.Context, actor identity.Actor) (bool, error)
}

type linePublisher interface {
	PublishCartLineChanged(ctx context.Context, event events.CartLineChanged) error
}
