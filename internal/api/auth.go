package api

import (
	"context"

	"polaris/internal/observability/logging"
)

type contextKey string

const usernameContextKey contextKey = "sessionUsername"

// ContextWithUsername stores the session owner on the context and on the
// request log record.
func ContextWithUsername(ctx context.Context, username string) context.Context {
	logging.SetUsername(ctx, username)
	return context.WithValue(ctx, usernameContextKey, username)
}

// UsernameFromContext returns the session owner stored by ContextWithUsername.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameContextKey).(string)
	return username, ok
}
