package plan

import (
	"github.com/inkfold/inkfold/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func provideHolder(cfg config.Config, log *zap.Logger) (*CatalogHolder, error) {
	return NewCatalogHolder(cfg.PlanCatalogPath, log.Named("plan.catalog"))
}

var Module = fx.Module("plan",
	fx.Provide(provideHolder),
)
