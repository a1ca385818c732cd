package reservations

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/numberpool/pkg/enums"
)

// Event drives a ReservationRecord through its lifecycle.
type Event string

const (
	EventOrder        Event = "order"
	EventStatusUpdate Event = "status_update"
	EventCancel       Event = "cancel"
	EventRelease      Event = "release"
	EventExpire       Event = "expire"
)

// StatusDeleted is the terminal state. It is never persisted: reaching it
// means the row is removed from the ledger.
const StatusDeleted enums.ReservationStatus = "deleted"

var ErrInvalidTransition = errors.New("invalid reservation transition")

// Transition returns the state a record in from moves to on ev.
//
//	blocked --order--> ordered
//	ordered --status_update--> ordered
//	blocked --release|expire--> deleted
//	blocked|ordered --cancel--> deleted
func Transition(from enums.ReservationStatus, ev Event) (enums.ReservationStatus, error) {
	switch from {
	case enums.ReservationStatusBlocked:
		switch ev {
		case EventOrder:
			return enums.ReservationStatusOrdered, nil
		case EventRelease, EventExpire, EventCancel:
			return StatusDeleted, nil
		}
	case enums.ReservationStatusOrdered:
		switch ev {
		case EventStatusUpdate:
			return enums.ReservationStatusOrdered, nil
		case EventCancel:
			return StatusDeleted, nil
		}
	}
	return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}
