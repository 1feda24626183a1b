// Package context carries request-scoped identifiers used by logging and tracing.
package context

import (
	"context"
	"strings"

	"github.com/smallbiznis/bookpost/pkg/telemetry/correlation"
)

// GinKeyPostingItems is the gin context key holding the submitted batch size.
const GinKeyPostingItems = "posting_items"

// HeaderRateLimitReason names why a request was throttled.
const HeaderRateLimitReason = "X-Rate-Limited-Reason"

type requestIDKey struct{}
type tenantIDKey struct{}

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithTenantID stores the tenant the request acts on behalf of.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	tenantID = strings.TrimSpace(tenantID)
	if ctx == nil || tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(tenantIDKey{}).(string); ok {
		return v
	}
	return ""
}

// CorrelationIDFromContext returns the correlation id shared by all work spawned from one request.
func CorrelationIDFromContext(ctx context.Context) string {
	return correlation.ExtractCorrelationID(ctx)
}

// EnsureCorrelationID attaches a correlation id when none is present.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	return correlation.EnsureCorrelationID(ctx)
}
