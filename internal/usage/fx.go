package usage

import (
	"github.com/inkfold/inkfold/internal/usage/repository"
	"github.com/inkfold/inkfold/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
