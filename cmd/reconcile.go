package cmd

import (
	"context"
	"fmt"

	"stakevault/internal/config"
	"stakevault/internal/db"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
	"stakevault/pkg/clock"

	"go.uber.org/zap/zapcore"
)

// Reconcile replays the ledger per (user, asset, chain) and compares the
// result against the balance cache. With fix=true the cache is overwritten
// with the replayed truth; running it twice is a no-op after the first fix.
func Reconcile(fix bool) error {
	logger := newZapLogger("stakevault-reconcile", zapcore.InfoLevel)
	defer logger.Sync()

	cfg, err := config.NewAppConfig()
	if err != nil {
		logger.Errorw("failed to create config", "error", err)
		return err
	}

	gormDB, err := db.NewGormDB(cfg.DatabaseURL)
	if err != nil {
		logger.Errorw("failed to connect to database", "error", err)
		return err
	}

	store := repository.NewStore(gormDB)
	wallClock := clock.Wall{}

	reconciler := ledger.NewReconciler(logger, store, wallClock.Now)
	discrepancies, err := reconciler.Run(context.Background(), fix)
	if err != nil {
		logger.Errorw("reconciliation failed", "error", err)
		return err
	}

	if len(discrepancies) == 0 {
		logger.Infow("reconciliation clean, no discrepancies")
		return nil
	}

	logger.Infow("reconciliation finished",
		"discrepancies", len(discrepancies),
		"fixed", fix)

	if !fix {
		return fmt.Errorf("found %d balance discrepancies (run with --fix to repair)", len(discrepancies))
	}
	return nil
}
