package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/planely/kassa/internal/clock"
	"github.com/planely/kassa/internal/config"
	"github.com/planely/kassa/internal/migration"
	"github.com/planely/kassa/internal/observability"
	"github.com/planely/kassa/internal/server"
	"github.com/planely/kassa/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
