package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/inkfold/inkfold/internal/config"
	"github.com/inkfold/inkfold/internal/migration"
	"github.com/inkfold/inkfold/internal/observability"
	"github.com/inkfold/inkfold/internal/server"
	"github.com/inkfold/inkfold/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
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
