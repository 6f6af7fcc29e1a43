// Package entitlement собирает HTTP-приложение сервиса доступа.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-service/internal/analytics"
	"github.com/magabrotheeeer/entitlement-service/internal/authprovider"
	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/retry"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/migrations"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
	"github.com/magabrotheeeer/entitlement-service/internal/services/billing"
	entitlementservice "github.com/magabrotheeeer/entitlement-service/internal/services/entitlement"
	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

// App HTTP-приложение с его ресурсами.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	queue  *analytics.Queue
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// AuthRetryPolicy политика повторов обращения к провайдеру аутентификации.
func AuthRetryPolicy(cfg config.Entitlement) retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.AuthRetryAttempts > 0 {
		p.Attempts = cfg.AuthRetryAttempts
	}
	if cfg.AuthRetryBaseDelay > 0 {
		p.BaseDelay = cfg.AuthRetryBaseDelay
	}
	return p
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.entitlement.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	version, err := migrations.Run(db.DB, cfg.MigrationsPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("database schema is up to date", slog.Uint64("version", uint64(version)))

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}

	var tracker entitlementservice.Tracker = analytics.Discard{}
	if cfg.RabbitMQURL != "" {
		if err := app.setupAnalytics(ctx, cfg); err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tracker = app.queue
	} else {
		logger.Warn("rabbitmq url is not set, analytics events are discarded")
	}

	processor := paymentprovider.New(cfg.Stripe, nil)
	if !processor.Configured() {
		logger.Warn("stripe secret key is not set, checks will fail")
	}

	auth := authprovider.New(logger, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL), db, AuthRetryPolicy(cfg.Entitlement))
	snapshots := cache.NewSnapshotStore(cacheRedis, cfg.SnapshotTTL)
	entitlements := entitlementservice.New(logger, db, db, processor, snapshots, tracker)
	billingService := billing.New(logger, processor, db, entitlements, tracker)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, Deps{
		Auth:         auth,
		Entitlements: entitlements,
		Billing:      billingService,
		Tracker:      tracker,
		Health: map[string]health.Checker{
			"postgres": db,
			"redis":    cacheRedis,
		},
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

func (a *App) setupAnalytics(ctx context.Context, cfg *config.Config) error {
	conn, err := rabbitmq.Dial(ctx, cfg.RabbitMQURL, rabbitmq.RetryPolicy(cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay))
	if err != nil {
		return err
	}
	topology := rabbitmq.AnalyticsTopology()
	ch, err := topology.Declare(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	a.conn = conn
	a.ch = ch
	pub := rabbitmq.NewPublisher(ch, topology.Exchange, topology.RoutingKey())
	a.queue = analytics.New(a.logger, pub, cfg.AnalyticsQueueSize)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	if a.queue != nil {
		go a.queue.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
