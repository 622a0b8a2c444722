package model

import "context"

// SystemActor is recorded in TrackingInfo when no actor is attached to the context.
const SystemActor = "system"

type actorKey struct{}

// WithActor returns a context carrying the identity recorded as creator or updater.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached to ctx, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
