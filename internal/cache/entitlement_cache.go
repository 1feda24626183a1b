package cache

import (
	"strings"
	"time"
)

// EntitlementSnapshot is the cached view of a tenant's subscription state.
type EntitlementSnapshot struct {
	Plan       string
	Active     bool
	MonthlyCap *int64
}

// EntitlementCache stores hot-path entitlement lookups for posting admission.
// Usage counts are never cached.
type EntitlementCache interface {
	Get(tenantID string) (EntitlementSnapshot, bool)
	Set(tenantID string, snapshot EntitlementSnapshot)
	Invalidate(tenantID string)
}

type entitlementCache struct {
	entries Cache[string, EntitlementSnapshot]
	ttl     time.Duration
}

// NewEntitlementCache returns an in-memory cache, or nil when ttl <= 0 disables caching.
func NewEntitlementCache(ttl time.Duration) EntitlementCache {
	if ttl <= 0 {
		return nil
	}
	return &entitlementCache{
		entries: NewTTLCache[string, EntitlementSnapshot](),
		ttl:     ttl,
	}
}

func (c *entitlementCache) Get(tenantID string) (EntitlementSnapshot, bool) {
	return c.entries.Get(cacheKey(tenantID))
}

func (c *entitlementCache) Set(tenantID string, snapshot EntitlementSnapshot) {
	key := cacheKey(tenantID)
	if key == "" {
		return
	}
	c.entries.Set(key, snapshot, c.ttl)
}

func (c *entitlementCache) Invalidate(tenantID string) {
	c.entries.Delete(cacheKey(tenantID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, "|")
}
