package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// StatusResolver возвращает статус доступа пользователя, по возможности из снимка.
type StatusResolver interface {
	Resolve(ctx context.Context, user *models.User) (models.Status, error)
}

// Tracker принимает события аналитики.
type Tracker interface {
	Track(name, userUID string, props map[string]any)
}

// RequirePremium пропускает только пользователей с премиум-доступом, остальным отвечает 402.
// Должен стоять после Authenticate.
func RequirePremium(log *slog.Logger, resolver StatusResolver, tracker Tracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequirePremium"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			user, ok := UserFromContext(r.Context())
			if !ok {
				log.Error("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			status, err := resolver.Resolve(r.Context(), user)
			if err != nil {
				log.Error("failed to resolve entitlement", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal service error"))
				return
			}

			if !status.HasPremiumAccess() {
				tracker.Track(models.EventPaywallHit, user.UUID, map[string]any{"path": r.URL.Path})
				log.Info("premium access denied", slog.String("user_uid", user.UUID))
				render.Status(r, http.StatusPaymentRequired)
				render.JSON(w, r, response.Error("premium subscription required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
