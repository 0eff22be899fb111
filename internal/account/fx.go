package account

import (
	"github.com/inkfold/inkfold/internal/account/repository"
	"github.com/inkfold/inkfold/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
