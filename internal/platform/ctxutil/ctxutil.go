package ctxutil

import (
	"context"
	"strings"
)

// DefaultActor is used when no actor was attached to the context.
const DefaultActor = "system"

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

type actorKey struct{}

// WithActor attaches the identity performing the current unit of work.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(Default(ctx), actorKey{}, strings.TrimSpace(actor))
}

// Actor returns the attached actor or DefaultActor.
func Actor(ctx context.Context) string {
	if ctx == nil {
		return DefaultActor
	}
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return DefaultActor
}
