package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithUserID decorates the request logger with the authenticated user id so
// every line logged after the guard carries it.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return WithContext(ctx, FromContext(ctx).With("user_id", userID))
}
