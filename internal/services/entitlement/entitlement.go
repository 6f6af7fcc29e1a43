// Package entitlement вычисляет статус премиум-доступа пользователя.
//
// Роль admin и выданная вручную роль subscriber дают доступ без обращения
// к платёжному провайдеру. Роль subscriber, за которой стоит подписка
// провайдера, перепроверяется. Иначе статус определяется активной подпиской
// покупателя с той же почтой, а локальные роли и проекция подписки
// синхронизируются с результатом.
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

// RoleStore хранилище назначенных ролей.
type RoleStore interface {
	ListPremiumRoles(ctx context.Context, userUID string) ([]models.Role, error)
	UpsertRole(ctx context.Context, userUID string, role models.Role) error
	DeleteRole(ctx context.Context, userUID string, role models.Role) (int64, error)
}

// SubscriptionStore хранилище проекций подписок.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, rec models.SubscriptionRecord) (bool, error)
	HasSubscription(ctx context.Context, userUID string) (bool, error)
	UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) (bool, error)
}

// Processor платёжный провайдер.
type Processor interface {
	Configured() bool
	FindCustomerByEmail(ctx context.Context, email string) (string, bool, error)
	FindActiveSubscription(ctx context.Context, customerID string) (*paymentprovider.Subscription, bool, error)
}

// SnapshotStore кеш последних вычисленных статусов.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, userUID string) (models.Status, bool, error)
	SaveSnapshot(ctx context.Context, userUID string, status models.Status) error
	InvalidateSnapshot(ctx context.Context, userUID string) error
}

// Tracker принимает события аналитики.
type Tracker interface {
	Track(name, userUID string, props map[string]any)
}

// Service вычисляет и синхронизирует статус доступа.
type Service struct {
	log       *slog.Logger
	roles     RoleStore
	subs      SubscriptionStore
	processor Processor
	snapshots SnapshotStore
	tracker   Tracker
}

// New создаёт сервис.
func New(log *slog.Logger, roles RoleStore, subs SubscriptionStore, processor Processor, snapshots SnapshotStore, tracker Tracker) *Service {
	return &Service{
		log:       log,
		roles:     roles,
		subs:      subs,
		processor: processor,
		snapshots: snapshots,
		tracker:   tracker,
	}
}

// Check вычисляет статус аутентифицированного пользователя и обновляет снимок.
// Ошибки провайдера не повторяются.
func (s *Service) Check(ctx context.Context, user *models.User) (models.Status, error) {
	const op = "entitlement.Check"
	log := s.log.With(slog.String("op", op), slog.String("user_uid", user.UUID))

	if !s.processor.Configured() {
		metrics.ChecksTotal.WithLabelValues("error").Inc()
		return models.Status{}, fmt.Errorf("%s: %w", op, paymentprovider.ErrNotConfigured)
	}

	status, source, err := s.resolve(ctx, log, user)
	if err != nil {
		metrics.ChecksTotal.WithLabelValues("error").Inc()
		return models.Status{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.ChecksTotal.WithLabelValues(source).Inc()

	if err := s.snapshots.SaveSnapshot(ctx, user.UUID, status); err != nil {
		sl.Step(log, "snapshot").Warn("failed to save snapshot", sl.Err(err))
	}
	s.tracker.Track(models.EventEntitlementChecked, user.UUID, map[string]any{
		"subscribed": status.Subscribed,
		"role":       string(status.Role),
		"source":     source,
	})
	log.Info("entitlement resolved",
		slog.Bool("subscribed", status.Subscribed),
		slog.Bool("is_admin", status.IsAdmin),
		slog.String("source", source),
	)
	return status, nil
}

func (s *Service) resolve(ctx context.Context, log *slog.Logger, user *models.User) (models.Status, string, error) {
	roleLog := sl.Step(log, "roles")
	roles, err := s.roles.ListPremiumRoles(ctx, user.UUID)
	if err != nil {
		roleLog.Error("failed to list roles", sl.Err(err))
		return models.Status{}, "", err
	}
	status, ok := statusFromRoles(roles)
	if !ok {
		return s.syncFromProcessor(ctx, log, user, false)
	}
	if status.Role == models.RoleSubscriber {
		backed, err := s.subs.HasSubscription(ctx, user.UUID)
		if err != nil {
			roleLog.Error("failed to look up subscription projection", sl.Err(err))
			return models.Status{}, "", err
		}
		if backed {
			roleLog.Debug("subscriber role backed by processor, rechecking")
			return s.syncFromProcessor(ctx, log, user, true)
		}
	}
	roleLog.Debug("premium role found, processor skipped", slog.String("role", string(status.Role)))
	return status, "role", nil
}

// statusFromRoles admin имеет приоритет над subscriber.
func statusFromRoles(roles []models.Role) (models.Status, bool) {
	var hasAdmin, hasSubscriber bool
	for _, r := range roles {
		switch r {
		case models.RoleAdmin:
			hasAdmin = true
		case models.RoleSubscriber:
			hasSubscriber = true
		}
	}
	switch {
	case hasAdmin:
		return models.Status{Subscribed: true, IsAdmin: true, Role: models.RoleAdmin}, true
	case hasSubscriber:
		return models.Status{Subscribed: true, IsAdmin: false, Role: models.RoleSubscriber}, true
	}
	return models.Status{}, false
}

// syncFromProcessor при backed роль subscriber уже выдана по подписке
// провайдера и снимается, если провайдер её не подтверждает.
func (s *Service) syncFromProcessor(ctx context.Context, log *slog.Logger, user *models.User, backed bool) (models.Status, string, error) {
	procLog := sl.Step(log, "processor")
	customerID, found, err := s.processor.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		procLog.Error("customer lookup failed", sl.Err(err))
		return models.Status{}, "", err
	}
	if !found {
		procLog.Debug("no customer for email")
		if backed {
			s.revokeSubscriber(ctx, log, user.UUID)
		}
		return models.Unauthenticated(), "no_customer", nil
	}

	sub, active, err := s.processor.FindActiveSubscription(ctx, customerID)
	if err != nil {
		procLog.Error("subscription lookup failed", slog.String("customer_id", customerID), sl.Err(err))
		return models.Status{}, "", err
	}
	if !active {
		s.revokeSubscriber(ctx, log, user.UUID)
		return models.Unauthenticated(), "processor", nil
	}

	s.grantSubscriber(ctx, log, user.UUID, sub)
	return statusFromSubscription(sub), "processor", nil
}

func statusFromSubscription(sub *paymentprovider.Subscription) models.Status {
	status := models.Status{
		Subscribed: true,
		IsAdmin:    false,
		Role:       models.RoleSubscriber,
		PriceID:    sub.PriceID,
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		status.SubscriptionEnd = &end
	}
	return status
}

// grantSubscriber ошибки записи не отменяют уже подтверждённый провайдером доступ.
func (s *Service) grantSubscriber(ctx context.Context, log *slog.Logger, userUID string, sub *paymentprovider.Subscription) {
	syncLog := sl.Step(log, "sync")
	if err := s.roles.UpsertRole(ctx, userUID, models.RoleSubscriber); err != nil {
		syncLog.Error("failed to upsert subscriber role", sl.Err(err))
	}
	if _, err := s.subs.UpsertSubscription(ctx, recordFromSubscription(userUID, sub)); err != nil {
		syncLog.Error("failed to upsert subscription", slog.String("subscription_id", sub.ID), sl.Err(err))
	}
}

func (s *Service) revokeSubscriber(ctx context.Context, log *slog.Logger, userUID string) {
	syncLog := sl.Step(log, "sync")
	n, err := s.roles.DeleteRole(ctx, userUID, models.RoleSubscriber)
	if err != nil {
		syncLog.Error("failed to delete subscriber role", sl.Err(err))
		return
	}
	if n > 0 {
		syncLog.Info("stale subscriber role removed")
	}
}

func recordFromSubscription(userUID string, sub *paymentprovider.Subscription) models.SubscriptionRecord {
	return models.SubscriptionRecord{
		UserUID:              userUID,
		StripeCustomerID:     sub.CustomerID,
		StripeSubscriptionID: sub.ID,
		Status:               sub.Status,
		PriceID:              sub.PriceID,
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		StateAt:              sub.ObservedAt,
	}
}
