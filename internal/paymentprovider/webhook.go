package paymentprovider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	// ErrInvalidSignature подпись вебхука не прошла проверку.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnhandledEvent тип события не влияет на доступ.
	ErrUnhandledEvent = errors.New("unhandled webhook event")
)

// Типы событий подписки, влияющие на доступ.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// SubscriptionEvent событие изменения подписки.
type SubscriptionEvent struct {
	ID           string
	Type         string
	Created      time.Time
	Subscription Subscription
}

// ParseSubscriptionEvent проверяет подпись и разбирает событие подписки.
func ParseSubscriptionEvent(payload []byte, sigHeader, secret string) (*SubscriptionEvent, error) {
	const op = "paymentprovider.ParseSubscriptionEvent"
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	if strings.TrimSpace(sigHeader) == "" {
		return nil, fmt.Errorf("%s: %w: missing signature", op, ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSignature, err)
	}

	switch string(event.Type) {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
	default:
		return &SubscriptionEvent{ID: event.ID, Type: string(event.Type)}, ErrUnhandledEvent
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("%s: decode subscription: %w", op, err)
	}
	out := &SubscriptionEvent{
		ID:           event.ID,
		Type:         string(event.Type),
		Created:      time.Unix(event.Created, 0).UTC(),
		Subscription: *fromStripe(&sub),
	}
	out.Subscription.ObservedAt = out.Created
	return out, nil
}
