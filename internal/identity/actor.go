package identity

import (
	"context"

	"github.com/angelmondragon/numberpool/pkg/enums"
)

// Actor is the identity quota and ownership are tracked against. SessionKey
// names the cart session whose lines count as live for the actor.
type Actor struct {
	ID         string          `json:"id"`
	Kind       enums.ActorKind `json:"kind"`
	SessionKey string          `json:"-"`
}

func (a Actor) IsGuest() bool {
	return a.Kind == enums.ActorKindGuest
}

func (a Actor) Valid() bool {
	return a.ID != "" && a.SessionKey != ""
}

type actorKey struct{}

// WithActor stores the resolved actor on the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.Valid()
}

// ActorForID rebuilds an actor from a stored actor id. Guest actors come back
// without a cart session since only the request knows it.
func ActorForID(actorID string) Actor {
	kind := enums.ActorKindOf(actorID)
	actor := Actor{ID: actorID, Kind: kind}
	if kind == enums.ActorKindAccount {
		actor.SessionKey = accountSessionPrefix + actorID
	}
	return actor
}
