package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context.
// If no logger is found, the global logger is returned.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithSession derives a context whose logger is tagged with the viewer
// session ID and generation. Every goroutine spawned for a session should
// log through a context built here.
func WithSession(ctx context.Context, sessionID string, generation uint64) context.Context {
	l := Ctx(ctx).With().
		Str(FieldSessionID, sessionID).
		Uint64(FieldGeneration, generation).
		Logger()
	return WithLogger(ctx, l)
}
