package entitlement

import (
	"github.com/smallbiznis/bookpost/internal/cache"
	"github.com/smallbiznis/bookpost/internal/config"
	"github.com/smallbiznis/bookpost/internal/entitlement/repository"
	"github.com/smallbiznis/bookpost/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) cache.EntitlementCache {
		return cache.NewEntitlementCache(cfg.Billing.EntitlementCache)
	}),
	fx.Provide(service.NewGate),
)
