package check

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Check(ctx context.Context, user *models.User) (models.Status, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.Status), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestCheckHandler_ServeHTTP(t *testing.T) {
	user := &models.User{UUID: "u1", Email: "builder@example.com"}
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		user           *models.User
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   map[string]any
	}{
		{
			name: "subscriber",
			user: user,
			setupMock: func(m *MockService) {
				m.On("Check", mock.Anything, user).Return(models.Status{
					Subscribed: true, Role: models.RoleSubscriber, SubscriptionEnd: &end, PriceID: "price_pro",
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]any{
				"subscribed":       true,
				"isAdmin":          false,
				"role":             "subscriber",
				"subscription_end": "2026-11-01T00:00:00Z",
				"price_id":         "price_pro",
			},
		},
		{
			name: "free user",
			user: user,
			setupMock: func(m *MockService) {
				m.On("Check", mock.Anything, user).Return(models.Unauthenticated(), nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   map[string]any{"subscribed": false, "isAdmin": false, "role": "user"},
		},
		{
			name:           "no user in context",
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   map[string]any{"error": "unauthorized"},
		},
		{
			name: "processor not configured",
			user: user,
			setupMock: func(m *MockService) {
				m.On("Check", mock.Anything, user).Return(models.Status{}, fmt.Errorf("entitlement.Check: %w", paymentprovider.ErrNotConfigured)).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]any{"error": "payment processor is not configured"},
		},
		{
			name: "processor error",
			user: user,
			setupMock: func(m *MockService) {
				m.On("Check", mock.Anything, user).Return(models.Status{}, errors.New("stripe down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   map[string]any{"error": "failed to check subscription"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/check-subscription", nil)
			if tt.user != nil {
				req = req.WithContext(middlewarectx.WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedBody, body)
			svc.AssertExpectations(t)
		})
	}
}
