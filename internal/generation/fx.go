package generation

import (
	"github.com/inkfold/inkfold/internal/generation/domain"
	"github.com/inkfold/inkfold/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(func() domain.Generator {
		return service.NewEchoGenerator()
	}),
)
