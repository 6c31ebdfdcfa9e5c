package httpx

import (
	"context"
	"strconv"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

// WithUserID records the authenticated user's id for downstream middleware
// such as per-user rate limiting.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, id)
}

// UserIDFromContext returns the id stored by WithUserID.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(int64)
	return id, ok && id > 0
}

func userIDString(ctx context.Context) string {
	if id, ok := UserIDFromContext(ctx); ok {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return ""
}
