package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/db"
	"github.com/angelmondragon/barter-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to date on boot when
// BARTER_AUTO_MIGRATE is set. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	results, err := Up(ctx, sqlDB, cfg.DB.Driver)
	if err != nil {
		return err
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		if r.Source != nil {
			applied = append(applied, r.Source.Version)
		}
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"driver": cfg.DB.Driver, "applied": applied}), "dev migrations applied")
	return nil
}
