package enums

import "strings"

// ActorKind distinguishes authenticated accounts from anonymous guests.
type ActorKind string

const (
	ActorKindAccount ActorKind = "account"
	ActorKindGuest   ActorKind = "guest"
)

func (k ActorKind) String() string {
	return string(k)
}

// GuestActorPrefix marks actor ids derived from a hashed client address.
const GuestActorPrefix = "guest_"

// ActorKindOf classifies a resolved actor id.
func ActorKindOf(actorID string) ActorKind {
	if strings.HasPrefix(actorID, GuestActorPrefix) {
		return ActorKindGuest
	}
	return ActorKindAccount
}
