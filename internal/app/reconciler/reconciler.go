// Package reconciler собирает фоновую сверку подписок с истёкшим периодом.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/analytics"
	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
	"github.com/magabrotheeeer/entitlement-service/internal/services/entitlement"
	"github.com/magabrotheeeer/entitlement-service/internal/services/reconcile"
	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

// App приложение сверки.
type App struct {
	scheduler *Scheduler
	db        *repository.Storage
	cache     *cache.Cache
	logger    *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(ctx, db)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения сверки.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	processor := paymentprovider.New(cfg.Stripe, nil)
	if !processor.Configured() {
		return nil, fmt.Errorf("reconciler: %w", paymentprovider.ErrNotConfigured)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	snapshots := cache.NewSnapshotStore(cacheRedis, cfg.SnapshotTTL)
	entitlements := entitlement.New(logger, db, db, processor, snapshots, analytics.Discard{})
	reconcileService := reconcile.New(logger, db, processor, entitlements, cfg.BatchSize)

	return &App{
		scheduler: NewScheduler(logger, reconcileService, cfg.Schedule),
		db:        db,
		cache:     cacheRedis,
		logger:    logger,
	}, nil
}

// Run запускает планировщик и ждёт отмены контекста.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down reconciler")
	<-a.scheduler.Stop().Done()
	return nil
}

func (a *App) close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
