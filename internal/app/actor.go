package app

import (
	"context"
	"strings"
)

// DefaultActorID attributes mutations made without an authenticated caller.
const DefaultActorID = "pipedesk-user"

// Actor carries normalized caller identity for mutation attribution.
type Actor struct {
	ID   string
	Name string
}

// actorContextKey stores context keys for actor values.
type actorContextKey struct{}

// WithActor attaches a normalized actor to context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, normalizeActor(actor))
}

// ActorFromContext returns the actor attached to ctx when present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

// ActorIDFromContext returns the caller id, falling back to DefaultActorID.
func ActorIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.ID
	}
	return DefaultActorID
}

// normalizeActor trims actor fields and defaults the display name to the id.
func normalizeActor(actor Actor) Actor {
	actor.ID = strings.TrimSpace(actor.ID)
	actor.Name = strings.TrimSpace(actor.Name)
	if actor.Name == "" {
		actor.Name = actor.ID
	}
	return actor
}
