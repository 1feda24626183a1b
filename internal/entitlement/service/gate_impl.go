package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/bookpost/internal/cache"
	"github.com/smallbiznis/bookpost/internal/clock"
	"github.com/smallbiznis/bookpost/internal/config"
	entitlementdomain "github.com/smallbiznis/bookpost/internal/entitlement/domain"
	usagedomain "github.com/smallbiznis/bookpost/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type GateParam struct {
	fx.In

	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Repo  entitlementdomain.Repository
	Usage usagedomain.Service
	Caps  *config.PlanCapsHolder
	Cache cache.EntitlementCache
}

type Gate struct {
	log          *zap.Logger
	clock        clock.Clock
	repo         entitlementdomain.Repository
	usage        usagedomain.Service
	caps         *config.PlanCapsHolder
	cache        cache.EntitlementCache
	portalAction string
}

func NewGate(p GateParam) entitlementdomain.Gate {
	portal := strings.TrimSpace(p.Cfg.Billing.PortalPath)
	if portal == "" {
		portal = "/billing/portal"
	}
	return &Gate{
		log:          p.Log.Named("entitlement.gate"),
		clock:        p.Clock,
		repo:         p.Repo,
		usage:        p.Usage,
		caps:         p.Caps,
		cache:        p.Cache,
		portalAction: portal,
	}
}

func (g *Gate) Admit(ctx context.Context, tenantID string, requestedItemCount int) (entitlementdomain.Decision, error) {
	if requestedItemCount <= 0 {
		return entitlementdomain.Decision{}, entitlementdomain.ErrInvalidItemCount
	}

	// billing may have deactivated the tenant since the last read
	status, err := g.status(ctx, tenantID, false)
	if err != nil {
		return entitlementdomain.Decision{}, err
	}

	decision := entitlementdomain.Decision{
		Allowed:     true,
		Period:      status.Period,
		PostedCount: status.PostedCount,
		MonthlyCap:  status.MonthlyCap,
	}

	switch {
	case !status.Active:
		decision.Allowed = false
		decision.Denial = &entitlementdomain.Denial{
			Reason:          entitlementdomain.ReasonInactiveSubscription,
			Message:         "An active subscription is required to post journal entries.",
			SuggestedAction: g.portalAction,
		}
	case status.PostedCount >= status.MonthlyCap:
		decision.Allowed = false
		decision.Denial = &entitlementdomain.Denial{
			Reason: entitlementdomain.ReasonCapExceeded,
			Message: fmt.Sprintf("Monthly posting limit reached (%d of %d for %s). Upgrade your plan to continue.",
				status.PostedCount, status.MonthlyCap, status.Period),
			SuggestedAction: g.portalAction,
		}
	}

	if !decision.Allowed {
		g.log.Info("posting batch denied",
			zap.String("tenant_id", status.TenantID),
			zap.String("reason", string(decision.Denial.Reason)),
			zap.String("period", status.Period),
			zap.Int64("posted_count", status.PostedCount),
			zap.Int64("monthly_cap", status.MonthlyCap),
			zap.Int("requested_items", requestedItemCount),
		)
	}
	return decision, nil
}

func (g *Gate) Status(ctx context.Context, tenantID string) (entitlementdomain.Status, error) {
	return g.status(ctx, tenantID, true)
}

func (g *Gate) status(ctx context.Context, tenantID string, allowCached bool) (entitlementdomain.Status, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return entitlementdomain.Status{}, entitlementdomain.ErrInvalidTenant
	}

	snapshot, err := g.snapshot(ctx, tenantID, allowCached)
	if err != nil {
		return entitlementdomain.Status{}, err
	}

	period := clock.PeriodKey(g.clock.Now())
	posted, err := g.usage.Read(ctx, tenantID, period)
	if err != nil {
		return entitlementdomain.Status{}, fmt.Errorf("read usage counter: %w", err)
	}

	plan := entitlementdomain.ParsePlan(snapshot.Plan)
	monthlyCap := g.resolveCap(tenantID, plan, snapshot.MonthlyCap)
	remaining := monthlyCap - posted
	if remaining < 0 {
		remaining = 0
	}

	return entitlementdomain.Status{
		TenantID:    tenantID,
		Plan:        plan,
		Active:      snapshot.Active && plan != entitlementdomain.PlanCanceled,
		Period:      period,
		PostedCount: posted,
		MonthlyCap:  monthlyCap,
		Remaining:   remaining,
	}, nil
}

func (g *Gate) snapshot(ctx context.Context, tenantID string, allowCached bool) (cache.EntitlementSnapshot, error) {
	if allowCached && g.cache != nil {
		if cached, ok := g.cache.Get(tenantID); ok {
			return cached, nil
		}
	}

	ent, err := g.repo.FindByTenant(ctx, tenantID)
	if err != nil {
		return cache.EntitlementSnapshot{}, fmt.Errorf("load entitlement: %w", err)
	}

	// missing row: tenant never subscribed
	snapshot := cache.EntitlementSnapshot{}
	if ent != nil {
		snapshot = cache.EntitlementSnapshot{
			Plan:       string(ent.Plan),
			Active:     ent.Active,
			MonthlyCap: ent.MonthlyCap,
		}
	}

	if g.cache != nil {
		g.cache.Set(tenantID, snapshot)
	}
	return snapshot, nil
}

func (g *Gate) resolveCap(tenantID string, plan entitlementdomain.Plan, explicit *int64) int64 {
	if explicit != nil {
		if *explicit < 0 {
			return 0
		}
		return *explicit
	}
	if plan == "" {
		return 0
	}
	if g.caps != nil {
		if planCap, ok := g.caps.Cap(string(plan)); ok {
			return planCap
		}
	}
	g.log.Warn("no monthly cap configured for plan; treating as blocked",
		zap.String("tenant_id", tenantID),
		zap.String("plan", string(plan)),
	)
	return 0
}
