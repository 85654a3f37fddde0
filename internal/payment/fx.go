package payment

import (
	"github.com/planely/kassa/internal/payment/repository"
	paymentservice "github.com/planely/kassa/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
)
