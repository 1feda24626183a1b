package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/bookpost/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request and annotates it with the
// tenant and, for posting requests, the batch size and admission outcome.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("bookpost/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = withRequestBaggage(ctx, span)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)
		annotatePosting(c, span, status)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

func withRequestBaggage(ctx context.Context, span trace.Span) context.Context {
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	span.SetAttributes(attribute.String("request_id", requestID))

	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

func annotatePosting(c *gin.Context, span trace.Span, status int) {
	if tenantID := obscontext.TenantIDFromContext(c.Request.Context()); tenantID != "" {
		span.SetAttributes(attribute.String("tenant_id", tenantID))
	}
	if items := c.GetInt(obscontext.GinKeyPostingItems); items > 0 {
		span.SetAttributes(attribute.Int("posting.items", items))
	}

	switch status {
	case http.StatusPaymentRequired:
		span.SetAttributes(attribute.String("posting.admission", "denied"))
		span.AddEvent("entitlement denied")
	case http.StatusTooManyRequests:
		span.SetAttributes(attribute.String("posting.admission", "rate_limited"))
		if reason := c.Writer.Header().Get(obscontext.HeaderRateLimitReason); reason != "" {
			span.SetAttributes(attribute.String("posting.rate_limit_reason", reason))
		}
	}
}
