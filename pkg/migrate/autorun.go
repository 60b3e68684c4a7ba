package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/offers-backend/pkg/config"
	"github.com/angelmondragon/offers-backend/pkg/db"
	"github.com/angelmondragon/offers-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot, only in dev and only
// when OFFERS_AUTO_MIGRATE is set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.App.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "applying offers schema migrations (dev auto-run)")

	runner, err := NewRunner(sqlDB, Migrations(), logg)
	if err != nil {
		return err
	}
	if err := runner.Up(ctx); err != nil {
		return err
	}

	logg.Info(ctx, "offers schema up to date")
	return nil
}
