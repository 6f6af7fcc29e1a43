// Package billing создаёт сессии оплаты и портала и применяет события подписок провайдера.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

// ErrNoCustomer у пользователя нет покупателя в платёжном провайдере.
var ErrNoCustomer = errors.New("no billing customer for user")

// Processor операции платёжного провайдера, нужные для оплаты.
type Processor interface {
	Configured() bool
	PriceID() string
	FindCustomerByEmail(ctx context.Context, email string) (string, bool, error)
	CreateCheckoutSession(ctx context.Context, req paymentprovider.CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
}

// CustomerDirectory сопоставляет покупателя провайдера с пользователем.
type CustomerDirectory interface {
	FindUserUIDByCustomer(ctx context.Context, stripeCustomerID string) (string, bool, error)
}

// Entitlements применяет состояние подписки к локальным ролям.
type Entitlements interface {
	ApplySubscription(ctx context.Context, userUID string, sub *paymentprovider.Subscription) error
}

// Tracker принимает события аналитики.
type Tracker interface {
	Track(name, userUID string, props map[string]any)
}

// Service сервис оплаты.
type Service struct {
	log          *slog.Logger
	processor    Processor
	customers    CustomerDirectory
	entitlements Entitlements
	tracker      Tracker
}

// New создаёт сервис оплаты.
func New(log *slog.Logger, processor Processor, customers CustomerDirectory, entitlements Entitlements, tracker Tracker) *Service {
	return &Service{
		log:          log,
		processor:    processor,
		customers:    customers,
		entitlements: entitlements,
		tracker:      tracker,
	}
}

// Checkout возвращает адрес сессии оплаты. Цена определяется только сервером.
func (s *Service) Checkout(ctx context.Context, user *models.User, returnURL string) (string, error) {
	const op = "billing.Checkout"
	if !s.processor.Configured() {
		return "", fmt.Errorf("%s: %w", op, paymentprovider.ErrNotConfigured)
	}

	customerID, _, err := s.processor.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	url, err := s.processor.CreateCheckoutSession(ctx, paymentprovider.CheckoutRequest{
		UserUID:    user.UUID,
		Email:      user.Email,
		CustomerID: customerID,
		SuccessURL: returnURL,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.tracker.Track(models.EventCheckoutStarted, user.UUID, map[string]any{
		"price_id":          s.processor.PriceID(),
		"existing_customer": customerID != "",
	})
	s.log.Info("checkout session created", slog.String("user_uid", user.UUID), slog.Bool("existing_customer", customerID != ""))
	return url, nil
}

// Portal возвращает адрес портала управления подпиской.
func (s *Service) Portal(ctx context.Context, user *models.User) (string, error) {
	const op = "billing.Portal"
	if !s.processor.Configured() {
		return "", fmt.Errorf("%s: %w", op, paymentprovider.ErrNotConfigured)
	}

	customerID, found, err := s.processor.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return "", fmt.Errorf("%s: %w", op, ErrNoCustomer)
	}
	url, err := s.processor.CreatePortalSession(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.tracker.Track(models.EventPortalOpened, user.UUID, nil)
	return url, nil
}

// HandleSubscriptionEvent применяет событие подписки. События неизвестных
// покупателей подтверждаются и пропускаются: доступ синхронизируется при следующей проверке.
// События старше сохранённого состояния подписки тоже подтверждаются без изменений.
func (s *Service) HandleSubscriptionEvent(ctx context.Context, ev *paymentprovider.SubscriptionEvent) error {
	const op = "billing.HandleSubscriptionEvent"
	log := sl.Step(s.log.With(
		slog.String("op", op),
		slog.String("event_id", ev.ID),
		slog.String("type", ev.Type),
	), "webhook")

	userUID := ev.Subscription.UserUID
	if userUID == "" {
		uid, found, err := s.customers.FindUserUIDByCustomer(ctx, ev.Subscription.CustomerID)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
			return fmt.Errorf("%s: %w", op, err)
		}
		if !found {
			metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "ignored").Inc()
			log.Info("subscription event for unknown customer ignored", slog.String("customer_id", ev.Subscription.CustomerID))
			return nil
		}
		userUID = uid
	}

	sub := ev.Subscription
	if ev.Type == paymentprovider.EventSubscriptionDeleted && sub.Status == models.SubscriptionStatusActive {
		sub.Status = models.SubscriptionStatusCanceled
	}
	err := s.entitlements.ApplySubscription(ctx, userUID, &sub)
	if errors.Is(err, models.ErrStaleSubscription) {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "stale").Inc()
		log.Info("out of order subscription event skipped", slog.String("user_uid", userUID), slog.Time("created", ev.Created))
		return nil
	}
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "applied").Inc()
	log.Info("subscription event applied", slog.String("user_uid", userUID), slog.String("status", sub.Status))
	return nil
}
