// Package analyticssink собирает потребителя событий аналитики.
package analyticssink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-service/internal/analytics"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/migrations"
	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

// App читает очередь аналитики и сохраняет события в базу.
type App struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	db       *repository.Storage
	sink     *analytics.Sink
	topology rabbitmq.Topology
	logger   *slog.Logger
}

// New создает новый экземпляр приложения.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("analyticssink: rabbitmq url is not set")
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if _, err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	conn, err := rabbitmq.Dial(ctx, cfg.RabbitMQURL, rabbitmq.RetryPolicy(cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	topology := rabbitmq.AnalyticsTopology()
	ch, err := topology.Declare(conn)
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	return &App{
		conn:     conn,
		ch:       ch,
		db:       db,
		sink:     analytics.NewSink(logger, db),
		topology: topology,
		logger:   logger,
	}, nil
}

// Run запускает потребителей, ждёт отмены контекста и дожидается обработчиков.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	consumers := make([]*rabbitmq.Consumer, 0, len(a.topology.Queues))
	for _, q := range a.topology.Queues {
		// Событие, которое не удалось сохранить, не возвращается в очередь.
		c, err := rabbitmq.Consume(ctx, a.logger, a.ch, rabbitmq.ConsumerOptions{
			Queue: q.Name,
			Tag:   "analytics-sink." + q.Name,
		}, a.sink.Handle)
		if err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.Name), sl.Err(err))
			return err
		}
		consumers = append(consumers, c)
		a.logger.Info("consuming analytics events", slog.String("queue", q.Name))
	}

	<-ctx.Done()
	a.logger.Info("analytics sink shutting down gracefully")
	for _, c := range consumers {
		c.Wait()
	}
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
