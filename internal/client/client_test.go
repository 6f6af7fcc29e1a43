package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newServer(t *testing.T, status int, respBody string, rec *recordedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec != nil {
			rec.method = r.Method
			rec.path = r.URL.Path
			rec.auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_CheckSubscription(t *testing.T) {
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		status     int
		body       string
		want       models.Status
		wantErr    string
		wantUnauth bool
	}{
		{
			name:   "subscriber",
			status: http.StatusOK,
			body:   `{"subscribed":true,"isAdmin":false,"role":"subscriber","subscription_end":"2026-11-01T00:00:00Z","price_id":"price_123"}`,
			want:   models.Status{Subscribed: true, Role: models.RoleSubscriber, SubscriptionEnd: &end, PriceID: "price_123"},
		},
		{
			name:   "admin",
			status: http.StatusOK,
			body:   `{"subscribed":true,"isAdmin":true,"role":"admin"}`,
			want:   models.Status{Subscribed: true, IsAdmin: true, Role: models.RoleAdmin},
		},
		{
			name:   "role omitted",
			status: http.StatusOK,
			body:   `{"subscribed":false,"isAdmin":false}`,
			want:   models.Unauthenticated(),
		},
		{name: "unknown role", status: http.StatusOK, body: `{"subscribed":true,"isAdmin":false,"role":"owner"}`, wantErr: "unknown role"},
		{name: "missing subscribed", status: http.StatusOK, body: `{"isAdmin":false}`, wantErr: "no subscribed field"},
		{name: "garbage", status: http.StatusOK, body: `<html>`, wantErr: "decode response"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"unauthorized"}`, wantErr: "[401] unauthorized", wantUnauth: true},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"failed to check subscription"}`, wantErr: "[500] failed to check subscription"},
		{name: "server error without body", status: http.StatusBadGateway, body: ``, wantErr: "[502] unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recordedRequest
			srv := newServer(t, tt.status, tt.body, &rec)

			got, err := New(srv.URL+"/", nil).CheckSubscription(context.Background(), "tok")

			assert.Equal(t, http.MethodPost, rec.method)
			assert.Equal(t, checkPath, rec.path)
			assert.Equal(t, "Bearer tok", rec.auth)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantUnauth, IsUnauthorized(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_CreateCheckout(t *testing.T) {
	var rec recordedRequest
	srv := newServer(t, http.StatusOK, `{"url":"https://checkout.stripe.com/c/cs_1"}`, &rec)

	url, err := New(srv.URL, nil).CreateCheckout(context.Background(), "tok", "https://app.example.com/back")

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", url)
	assert.Equal(t, checkoutPath, rec.path)
	assert.Equal(t, map[string]any{"return_url": "https://app.example.com/back"}, rec.body)

	srv = newServer(t, http.StatusOK, `{}`, nil)
	_, err = New(srv.URL, nil).CreateCheckout(context.Background(), "tok", "")
	assert.ErrorContains(t, err, "no url")
}

func TestClient_CustomerPortal(t *testing.T) {
	var rec recordedRequest
	srv := newServer(t, http.StatusOK, `{"url":"https://billing.stripe.com/p/1"}`, &rec)

	url, err := New(srv.URL, nil).CustomerPortal(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.com/p/1", url)
	assert.Equal(t, portalPath, rec.path)

	srv = newServer(t, http.StatusNotFound, `{"error":"no billing account found for user"}`, nil)
	_, err = New(srv.URL, nil).CustomerPortal(context.Background(), "tok")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "no billing account found for user", apiErr.Message)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"subscribed":true}`, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL, nil).CheckSubscription(ctx, "tok")
	assert.ErrorIs(t, err, context.Canceled)
}
