// Package reconcile сверяет проекции подписок с истёкшим периодом с платёжным провайдером.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

// Store хранилище проекций подписок.
type Store interface {
	ClaimLapsedSubscriptions(ctx context.Context, now time.Time, limit int) ([]*models.SubscriptionRecord, error)
	UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) (bool, error)
}

// Processor поиск активной подписки покупателя.
type Processor interface {
	FindActiveSubscription(ctx context.Context, customerID string) (*paymentprovider.Subscription, bool, error)
}

// Entitlements изменение ролей по результату сверки.
type Entitlements interface {
	ApplySubscription(ctx context.Context, userUID string, sub *paymentprovider.Subscription) error
	MarkLapsed(ctx context.Context, rec *models.SubscriptionRecord) error
}

// Result итог одного прохода.
type Result struct {
	Checked int
	Renewed int
	Lapsed  int
	Failed  int
}

// Service выполняет сверку.
type Service struct {
	log          *slog.Logger
	store        Store
	processor    Processor
	entitlements Entitlements
	batchSize    int
	now          func() time.Time
}

// New создаёт сервис сверки.
func New(log *slog.Logger, store Store, processor Processor, entitlements Entitlements, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		log:          log,
		store:        store,
		processor:    processor,
		entitlements: entitlements,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

// Run обрабатывает одну пачку записей. Ошибка по отдельной записи не прерывает проход.
func (s *Service) Run(ctx context.Context) (Result, error) {
	const op = "reconcile.Run"
	log := s.log.With(slog.String("op", op))

	records, err := s.store.ClaimLapsedSubscriptions(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	var res Result
	for _, rec := range records {
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		res.Checked++
		outcome, err := s.reconcileOne(ctx, rec)
		if err != nil {
			res.Failed++
			metrics.ReconciledTotal.WithLabelValues("failed").Inc()
			log.Error("failed to reconcile subscription",
				slog.String("subscription_id", rec.StripeSubscriptionID),
				sl.Err(err),
			)
			continue
		}
		metrics.ReconciledTotal.WithLabelValues(outcome).Inc()
		switch outcome {
		case "renewed":
			res.Renewed++
		case "lapsed":
			res.Lapsed++
		}
	}

	log.Info("reconciliation finished",
		slog.Int("checked", res.Checked),
		slog.Int("renewed", res.Renewed),
		slog.Int("lapsed", res.Lapsed),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) reconcileOne(ctx context.Context, rec *models.SubscriptionRecord) (string, error) {
	sub, active, err := s.processor.FindActiveSubscription(ctx, rec.StripeCustomerID)
	if err != nil {
		return "", err
	}
	if !active {
		if err := s.entitlements.MarkLapsed(ctx, rec); err != nil {
			return "", err
		}
		return "lapsed", nil
	}

	if err := s.entitlements.ApplySubscription(ctx, rec.UserUID, sub); err != nil {
		return "", err
	}
	// Покупатель оформил новую подписку: старая запись больше не действует.
	if sub.ID != rec.StripeSubscriptionID {
		if _, err := s.store.UpdateSubscriptionStatus(ctx, rec.StripeSubscriptionID, models.SubscriptionStatusLapsed); err != nil {
			return "", err
		}
	}
	return "renewed", nil
}
