package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/bookpost/internal/observability/context"
	"github.com/smallbiznis/bookpost/pkg/telemetry"
)

const (
	HeaderTenant       = "X-Tenant-ID"
	contextTenantIDKey = "tenant_id"
)

// TenantContext resolves the tenant from the gateway-supplied header.
// Authentication happens upstream; requests without a tenant are rejected.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if tenantID == "" {
			AbortWithError(c, ErrTenantRequired)
			return
		}

		c.Set(contextTenantIDKey, tenantID)
		c.Request = c.Request.WithContext(obscontext.WithTenantID(c.Request.Context(), tenantID))
		c.Next()
	}
}

func tenantFromContext(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(contextTenantIDKey))
}

// HTTPMetrics records request counts, latency and in-flight requests.
func HTTPMetrics(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		m.IncInflight()
		defer m.DecInflight()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPIRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
