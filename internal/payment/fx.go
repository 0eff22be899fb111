package payment

import (
	"github.com/inkfold/inkfold/internal/payment/adapters"
	"github.com/inkfold/inkfold/internal/payment/adapters/stripe"
	"github.com/inkfold/inkfold/internal/payment/repository"
	paymentservice "github.com/inkfold/inkfold/internal/payment/service"
	"github.com/inkfold/inkfold/internal/payment/webhook"
	subscriptionrepo "github.com/inkfold/inkfold/internal/subscription/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(subscriptionrepo.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
