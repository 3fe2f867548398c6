package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> utils).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyLocationRef   = ContextKey("LocationRef")
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeyJobType is set when a request originates from the scheduler,
	// so store writes can be attributed to the job that made them.
	ContextKeyJobType = ContextKey("JobType")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
