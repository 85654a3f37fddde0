package tkassa

import (
	"github.com/planely/kassa/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("tkassa",
	fx.Provide(func(cfg config.Config) (*Builder, error) {
		return NewBuilder(cfg.Gateway)
	}),
	fx.Provide(func(cfg config.Config, builder *Builder) *Client {
		return NewClient(cfg.Gateway, builder)
	}),
)
