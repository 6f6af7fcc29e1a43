// Package check обрабатывает проверку статуса подписки текущего пользователя.
package check

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

// Service вычисляет статус доступа.
type Service interface {
	Check(ctx context.Context, user *models.User) (models.Status, error)
}

// Handler обрабатывает запросы проверки подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверить подписку
// @Description Возвращает статус премиум-доступа текущего пользователя. Роли admin и subscriber дают доступ без обращения к Stripe.
// @Tags Entitlement
// @Produce  json
// @Success 200 {object} models.Status "Статус доступа"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера или конфигурации"
// @Failure 503 {object} response.ErrorResponse "Провайдер аутентификации недоступен"
// @Router /check-subscription [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.check"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		log.Error("user not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	status, err := h.service.Check(r.Context(), user)
	if err != nil {
		log.Error("failed to check subscription", sl.Err(err))
		msg := "failed to check subscription"
		if errors.Is(err, paymentprovider.ErrNotConfigured) {
			msg = "payment processor is not configured"
		}
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error(msg))
		return
	}

	render.JSON(w, r, status)
}
