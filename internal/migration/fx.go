package migration

import (
	"github.com/planely/kassa/internal/config"
	paymentdomain "github.com/planely/kassa/internal/payment/domain"
	subscriptiondomain "github.com/planely/kassa/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite and mysql are dev-only setups; let gorm build the schema
			return conn.AutoMigrate(
				&paymentdomain.Payment{},
				&paymentdomain.NotificationRecord{},
				&subscriptiondomain.Subscription{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
