package timer

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/numberpool/pkg/enums"
)

// Event drives an actor's countdown.
type Event string

const (
	EventStart  Event = "start"
	EventTouch  Event = "touch"
	EventExpire Event = "expire"
	EventReset  Event = "reset"
	EventCancel Event = "cancel"
)

var ErrInvalidTransition = errors.New("invalid timer transition")

// Transition validates a countdown state change.
//
//	no_timer --start--> active
//	active --touch--> active
//	active --expire--> expired
//	expired --reset--> no_timer
//	active --cancel--> no_timer
func Transition(from enums.TimerState, ev Event) (enums.TimerState, error) {
	switch {
	case from == enums.TimerStateNone && ev == EventStart:
		return enums.TimerStateActive, nil
	case from == enums.TimerStateActive && ev == EventTouch:
		return enums.TimerStateActive, nil
	case from == enums.TimerStateActive && ev == EventExpire:
		return enums.TimerStateExpired, nil
	case from == enums.TimerStateExpired && ev == EventReset:
		return enums.TimerStateNone, nil
	case from == enums.TimerStateActive && ev == EventCancel:
		return enums.TimerStateNone, nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}
