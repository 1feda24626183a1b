package posting

import (
	"github.com/smallbiznis/bookpost/internal/posting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("posting.service",
	fx.Provide(service.NewService),
)
