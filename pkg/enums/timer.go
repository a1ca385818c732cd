package enums

// TimerState is the per-actor reservation countdown state.
type TimerState string

const (
	TimerStateNone    TimerState = "no_timer"
	TimerStateActive  TimerState = "active"
	TimerStateExpired TimerState = "expired"
)

var validTimerStates = []TimerState{
	TimerStateNone,
	TimerStateActive,
	TimerStateExpired,
}

func (s TimerState) String() string {
	return string(s)
}

func (s TimerState) IsValid() bool {
	return oneOf(s, validTimerStates)
}

func ParseTimerState(value string) (TimerState, error) {
	return parse("timer state", value, validTimerStates)
}
