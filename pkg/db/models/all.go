package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// development and tests.
func All() []any {
	return []any{
		&ProductLimit{},
		&ReservationRecord{},
		&ReservationNumber{},
		&CartLine{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
