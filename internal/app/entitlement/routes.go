package entitlement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/billing/checkout"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/billing/portal"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/billing/webhook"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/entitlement/access"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/entitlement/check"
	"github.com/magabrotheeeer/entitlement-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

// EntitlementService проверка доступа и чтение снимка.
type EntitlementService interface {
	Check(ctx context.Context, user *models.User) (models.Status, error)
	Resolve(ctx context.Context, user *models.User) (models.Status, error)
}

// BillingService сессии оплаты, портала и события вебхука.
type BillingService interface {
	Checkout(ctx context.Context, user *models.User, returnURL string) (string, error)
	Portal(ctx context.Context, user *models.User) (string, error)
	HandleSubscriptionEvent(ctx context.Context, ev *paymentprovider.SubscriptionEvent) error
}

// Deps зависимости маршрутов.
type Deps struct {
	Auth         middlewarectx.Authenticator
	Entitlements EntitlementService
	Billing      BillingService
	Tracker      middlewarectx.Tracker
	Health       map[string]health.Checker
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, deps Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "apikey", "x-client-info"},
			MaxAge:         300,
		}),
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Webhook endpoint (без аутентификации, проверяется подпись)
		r.Post("/payments/webhook", webhook.New(logger, deps.Billing, cfg.WebhookSecret).ServeHTTP)

		// Группа с аутентификацией по bearer-токену
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RPS, cfg.Burst))
			r.Use(middlewarectx.Authenticate(logger, deps.Auth))

			r.Post("/check-subscription", check.New(logger, deps.Entitlements).ServeHTTP)
			r.Post("/create-checkout", checkout.New(logger, deps.Billing, cfg.SuccessURL).ServeHTTP)
			r.Post("/customer-portal", portal.New(logger, deps.Billing).ServeHTTP)

			r.With(middlewarectx.RequirePremium(logger, deps.Entitlements, deps.Tracker)).
				Get("/premium/access", access.New(logger).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, deps.Health).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
