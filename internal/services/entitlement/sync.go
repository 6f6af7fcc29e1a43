package entitlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

// Resolve возвращает статус из снимка, а при его отсутствии выполняет полную проверку.
func (s *Service) Resolve(ctx context.Context, user *models.User) (models.Status, error) {
	status, found, err := s.snapshots.GetSnapshot(ctx, user.UUID)
	switch {
	case err != nil:
		metrics.SnapshotLookupsTotal.WithLabelValues("error").Inc()
		s.log.Warn("snapshot lookup failed", slog.String("user_uid", user.UUID), sl.Err(err))
	case found:
		metrics.SnapshotLookupsTotal.WithLabelValues("hit").Inc()
		return status, nil
	default:
		metrics.SnapshotLookupsTotal.WithLabelValues("miss").Inc()
	}
	return s.Check(ctx, user)
}

// ApplySubscription переносит состояние подписки провайдера в локальные роли и проекцию.
// В отличие от Check, ошибки записи возвращаются, чтобы провайдер повторил доставку.
// Состояние старше сохранённого роли не меняет: возвращается models.ErrStaleSubscription.
func (s *Service) ApplySubscription(ctx context.Context, userUID string, sub *paymentprovider.Subscription) error {
	const op = "entitlement.ApplySubscription"
	log := sl.Step(s.log.With(slog.String("op", op), slog.String("user_uid", userUID)), "sync")

	applied, err := s.subs.UpsertSubscription(ctx, recordFromSubscription(userUID, sub))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		log.Info("stale subscription state skipped",
			slog.String("subscription_id", sub.ID),
			slog.Time("observed_at", sub.ObservedAt),
		)
		return fmt.Errorf("%s: %w", op, models.ErrStaleSubscription)
	}
	if models.IsActiveStatus(sub.Status) {
		if err := s.roles.UpsertRole(ctx, userUID, models.RoleSubscriber); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		log.Info("subscriber role granted", slog.String("subscription_id", sub.ID))
	} else {
		if _, err := s.roles.DeleteRole(ctx, userUID, models.RoleSubscriber); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		log.Info("subscriber role revoked", slog.String("subscription_id", sub.ID), slog.String("status", sub.Status))
	}
	s.Invalidate(ctx, userUID)
	return nil
}

// MarkLapsed помечает проекцию истёкшей и снимает роль subscriber.
func (s *Service) MarkLapsed(ctx context.Context, rec *models.SubscriptionRecord) error {
	const op = "entitlement.MarkLapsed"
	if _, err := s.subs.UpdateSubscriptionStatus(ctx, rec.StripeSubscriptionID, models.SubscriptionStatusLapsed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.roles.DeleteRole(ctx, rec.UserUID, models.RoleSubscriber); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.Invalidate(ctx, rec.UserUID)
	return nil
}

// Invalidate удаляет снимок. Ошибка только логируется: снимок истечёт сам.
func (s *Service) Invalidate(ctx context.Context, userUID string) {
	if err := s.snapshots.InvalidateSnapshot(ctx, userUID); err != nil {
		s.log.Warn("failed to invalidate snapshot", slog.String("user_uid", userUID), sl.Err(err))
	}
}
