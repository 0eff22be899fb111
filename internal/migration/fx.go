package migration

import (
	"github.com/inkfold/inkfold/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Tests run on sqlite with AutoMigrate; the embedded SQL targets
		// the postgres deployments.
		if cfg.DBType == "sqlite" {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
