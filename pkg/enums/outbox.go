package enums

// OutboxAggregateType identifies the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateReservation OutboxAggregateType = "reservation"
	AggregateOrder       OutboxAggregateType = "order"
	AggregateTimer       OutboxAggregateType = "timer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateReservation,
	AggregateOrder,
	AggregateTimer,
}

func (a OutboxAggregateType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return oneOf(a, validAggregateTypes)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, validAggregateTypes)
}

// OutboxEventType names a domain event relayed through the outbox.
type OutboxEventType string

const (
	EventReservationBlocked    OutboxEventType = "reservation_blocked"
	EventReservationOrdered    OutboxEventType = "reservation_ordered"
	EventReservationReleased   OutboxEventType = "reservation_released"
	EventReservationExpired    OutboxEventType = "reservation_expired"
	EventReservationTransfered OutboxEventType = "reservation_transferred"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventTimerExpired          OutboxEventType = "timer_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventReservationBlocked,
	EventReservationOrdered,
	EventReservationReleased,
	EventReservationExpired,
	EventReservationTransfered,
	EventOrderStatusChanged,
	EventTimerExpired,
}

func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	return oneOf(e, validOutboxEventTypes)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, validOutboxEventTypes)
}

// OutboxDLQErrorReason explains why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return oneOf(r, validOutboxDLQErrorReasons)
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parse("outbox dlq error reason", value, validOutboxDLQErrorReasons)
}
