package credit

import (
	"github.com/inkfold/inkfold/internal/credit/repository"
	"github.com/inkfold/inkfold/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
