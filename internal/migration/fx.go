package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/internal/config"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"github.com/smallbiznis/creditgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, repo rbacdomain.Repository, node *snowflake.Node, log *zap.Logger) error {
		if db.IsPostgres(cfg) {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		if err := SeedDefaults(context.Background(), conn, repo, node, snowflake.ID(cfg.Bootstrap.AdminUserID)); err != nil {
			return err
		}
		log.Info("schema ready", zap.String("database_type", cfg.DBType))
		return nil
	}),
)
