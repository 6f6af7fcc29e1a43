// Package client HTTP-клиент API сервиса доступа.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const (
	checkPath    = "/api/v1/check-subscription"
	checkoutPath = "/api/v1/create-checkout"
	portalPath   = "/api/v1/customer-portal"
)

// APIError ответ сервиса с кодом не 2xx.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[%d] unknown error", e.StatusCode)
	}
	return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
}

// IsUnauthorized сообщает, отклонил ли сервис токен.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Client клиент API. Токен передаётся в каждый вызов.
type Client struct {
	baseURL string
	http    *http.Client
}

// New создаёт клиента. httpClient может быть nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type statusResponse struct {
	Subscribed      *bool       `json:"subscribed"`
	IsAdmin         bool        `json:"isAdmin"`
	Role            models.Role `json:"role"`
	SubscriptionEnd *time.Time  `json:"subscription_end"`
	PriceID         string      `json:"price_id"`
}

type urlResponse struct {
	URL string `json:"url"`
}

type checkoutRequest struct {
	ReturnURL string `json:"return_url,omitempty"`
}

// CheckSubscription вызывает проверку подписки текущего пользователя.
func (c *Client) CheckSubscription(ctx context.Context, token string) (models.Status, error) {
	const op = "client.CheckSubscription"
	var resp statusResponse
	if err := c.post(ctx, checkPath, token, nil, &resp); err != nil {
		return models.Status{}, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Subscribed == nil {
		return models.Status{}, fmt.Errorf("%s: response has no subscribed field", op)
	}
	role := resp.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return models.Status{}, fmt.Errorf("%s: unknown role %q", op, resp.Role)
	}
	return models.Status{
		Subscribed:      *resp.Subscribed,
		IsAdmin:         resp.IsAdmin,
		Role:            role,
		SubscriptionEnd: resp.SubscriptionEnd,
		PriceID:         resp.PriceID,
	}, nil
}

// CreateCheckout возвращает адрес страницы оплаты. returnURL может быть пустым.
func (c *Client) CreateCheckout(ctx context.Context, token, returnURL string) (string, error) {
	const op = "client.CreateCheckout"
	var resp urlResponse
	if err := c.post(ctx, checkoutPath, token, checkoutRequest{ReturnURL: returnURL}, &resp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("%s: response has no url", op)
	}
	return resp.URL, nil
}

// CustomerPortal возвращает адрес портала управления подпиской.
func (c *Client) CustomerPortal(ctx context.Context, token string) (string, error) {
	const op = "client.CustomerPortal"
	var resp urlResponse
	if err := c.post(ctx, portalPath, token, nil, &resp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("%s: response has no url", op)
	}
	return resp.URL, nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
