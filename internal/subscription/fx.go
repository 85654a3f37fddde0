package subscription

import (
	"github.com/planely/kassa/internal/subscription/repository"
	subscriptionservice "github.com/planely/kassa/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(subscriptionservice.NewService),
)
