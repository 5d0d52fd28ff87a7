package middleware

import "context"

type contextKey string

const (
	ctxRepID   contextKey = "rep_id"
	ctxRepCode contextKey = "rep_code"
)

func RepIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRepID).(string); ok {
		return v
	}
	return ""
}

func RepCodeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRepCode).(string); ok {
		return v
	}
	return ""
}

// WithRepID injects the authenticated rep into the context.
func WithRepID(ctx context.Context, repID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRepID, repID)
}
