// Package paymentprovider клиент платёжного провайдера Stripe: поиск покупателя
// и активной подписки, создание сессий оплаты и портала, разбор вебхуков.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
)

const metadataUserUID = "user_uid"

var (
	// ErrNotConfigured секретный ключ провайдера не задан.
	ErrNotConfigured = errors.New("payment processor is not configured")
	// ErrPriceNotConfigured не задана цена для оформления подписки.
	ErrPriceNotConfigured = errors.New("price is not configured")
)

// Subscription проекция подписки провайдера.
type Subscription struct {
	ID                 string
	CustomerID         string
	UserUID            string // из metadata, проставляется при оформлении
	Status             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	ObservedAt         time.Time // время события вебхука; пусто для прочитанного из API
}

// CheckoutRequest параметры сессии оплаты. Цена не передаётся: она берётся из конфига.
type CheckoutRequest struct {
	UserUID    string
	Email      string
	CustomerID string
	SuccessURL string
}

// Client обёртка над API Stripe.
type Client struct {
	api             *client.API
	configured      bool
	priceID         string
	successURL      string
	cancelURL       string
	portalReturnURL string
}

// New создаёт клиента. backends может быть nil, тогда используются стандартные адреса Stripe.
func New(cfg config.Stripe, backends *stripe.Backends) *Client {
	key := strings.TrimSpace(cfg.SecretKey)
	return &Client{
		api:             client.New(key, backends),
		configured:      key != "",
		priceID:         strings.TrimSpace(cfg.PriceID),
		successURL:      cfg.SuccessURL,
		cancelURL:       cfg.CancelURL,
		portalReturnURL: cfg.PortalReturnURL,
	}
}

// Configured сообщает, задан ли секретный ключ.
func (c *Client) Configured() bool {
	return c.configured
}

// PriceID цена, по которой оформляется подписка.
func (c *Client) PriceID() string {
	return c.priceID
}

func observe(call string, start time.Time) {
	metrics.ProcessorDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

// FindCustomerByEmail ищет покупателя по почте.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	const op = "paymentprovider.FindCustomerByEmail"
	if !c.configured {
		return "", false, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	defer observe("customers.list", time.Now())

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	it := c.api.Customers.List(params)
	if it.Next() {
		return it.Customer().ID, true, nil
	}
	if err := it.Err(); err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return "", false, nil
}

// FindActiveSubscription возвращает активную подписку покупателя.
func (c *Client) FindActiveSubscription(ctx context.Context, customerID string) (*Subscription, bool, error) {
	const op = "paymentprovider.FindActiveSubscription"
	if !c.configured {
		return nil, false, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	defer observe("subscriptions.list", time.Now())

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	it := c.api.Subscriptions.List(params)
	if it.Next() {
		return fromStripe(it.Subscription()), true, nil
	}
	if err := it.Err(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return nil, false, nil
}

// CreateCheckoutSession создаёт сессию оплаты подписки и возвращает её адрес.
// Существующий покупатель переиспользуется, иначе Stripe создаст нового по почте.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	const op = "paymentprovider.CreateCheckoutSession"
	if !c.configured {
		return "", fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	if c.priceID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrPriceNotConfigured)
	}
	defer observe("checkout.sessions.create", time.Now())

	successURL := c.successURL
	if req.SuccessURL != "" {
		successURL = req.SuccessURL
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.UserUID),
		Metadata: map[string]string{
			metadataUserUID: req.UserUID,
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				metadataUserUID: req.UserUID,
			},
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return s.URL, nil
}

// CreatePortalSession создаёт сессию портала управления подпиской.
func (c *Client) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	const op = "paymentprovider.CreatePortalSession"
	if !c.configured {
		return "", fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	defer observe("billing_portal.sessions.create", time.Now())

	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(customerID),
	}
	if c.portalReturnURL != "" {
		params.ReturnURL = stripe.String(c.portalReturnURL)
	}
	params.Context = ctx

	s, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return s.URL, nil
}

// fromStripe период и цена берутся из первого элемента подписки.
func fromStripe(s *stripe.Subscription) *Subscription {
	sub := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		UserUID:           s.Metadata[metadataUserUID],
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item == nil {
				continue
			}
			if item.Price != nil && sub.PriceID == "" {
				sub.PriceID = item.Price.ID
			}
			if item.CurrentPeriodStart > 0 && sub.CurrentPeriodStart.IsZero() {
				sub.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
			}
			if item.CurrentPeriodEnd > 0 && sub.CurrentPeriodEnd.IsZero() {
				sub.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
			}
		}
	}
	return sub
}
