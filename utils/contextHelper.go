package utils

import (
	"context"

	"github.com/horecafocus/backoffice_backend/appctx"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyLocationRef   = appctx.ContextKeyLocationRef
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyJobType       = appctx.ContextKeyJobType
)

func GetLocationRefFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyLocationRef)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetJobTypeFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyJobType)
}

func SetLocationRefInContext(ctx context.Context, locationRef string) context.Context {
	return appctx.Set(ctx, ContextKeyLocationRef, locationRef)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetJobTypeInContext(ctx context.Context, jobType string) context.Context {
	return appctx.Set(ctx, ContextKeyJobType, jobType)
}
