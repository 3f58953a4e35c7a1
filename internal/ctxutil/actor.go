// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

// ActorKey is the context key for the actor that triggered a run
// ("cli", "api", or a token subject).
type ActorKey struct{}

// RunIDKey is the context key for the escalation run ID.
type RunIDKey struct{}

// WithActorID returns a context with the actor ID embedded.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorKey{}, actorID)
}

// ActorFromContext returns the actor ID from context, or empty string if not set.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ActorKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRunID returns a context carrying the escalation run ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey{}, runID)
}

// RunIDFromContext returns the run ID from context, or empty string if not set.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(RunIDKey{}).(string); ok {
		return v
	}
	return ""
}
