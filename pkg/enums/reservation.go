package enums

// ReservationStatus is the persisted status of a ReservationRecord. Released,
// expired and cancelled rows are deleted rather than stored.
type ReservationStatus string

const (
	ReservationStatusBlocked ReservationStatus = "blocked"
	ReservationStatusOrdered ReservationStatus = "ordered"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusBlocked,
	ReservationStatusOrdered,
}

func (s ReservationStatus) String() string {
	return string(s)
}

func (s ReservationStatus) IsValid() bool {
	return oneOf(s, validReservationStatuses)
}

func ParseReservationStatus(value string) (ReservationStatus, error) {
	return parse("reservation status", value, validReservationStatuses)
}

// AvailabilityStatus is the verdict returned for a single number.
type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilitySold        AvailabilityStatus = "sold"
	AvailabilityInOtherCart AvailabilityStatus = "in_other_cart"
	AvailabilityInYourCart  AvailabilityStatus = "in_your_cart"
	AvailabilityMaxQuantity AvailabilityStatus = "max_quantity"
	AvailabilityOutOfRange  AvailabilityStatus = "out_of_range"
)

var validAvailabilityStatuses = []AvailabilityStatus{
	AvailabilityAvailable,
	AvailabilitySold,
	AvailabilityInOtherCart,
	AvailabilityInYourCart,
	AvailabilityMaxQuantity,
	AvailabilityOutOfRange,
}

func (s AvailabilityStatus) String() string {
	return string(s)
}

func (s AvailabilityStatus) IsValid() bool {
	return oneOf(s, validAvailabilityStatuses)
}

// Claimable reports whether the verdict lets the actor hold the number.
func (s AvailabilityStatus) Claimable() bool {
	return s == AvailabilityAvailable || s == AvailabilityInYourCart
}
