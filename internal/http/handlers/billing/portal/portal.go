// Package portal обрабатывает открытие портала управления подпиской.
package portal

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
	"github.com/magabrotheeeer/entitlement-service/internal/services/billing"
)

// Service создаёт сессии портала.
type Service interface {
	Portal(ctx context.Context, user *models.User) (string, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Открыть портал подписки
// @Tags Billing
// @Produce  json
// @Success 200 {object} response.URLResponse "Адрес портала"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Покупатель не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /customer-portal [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.portal"
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

	portalURL, err := h.service.Portal(r.Context(), user)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrNoCustomer):
		log.Info("no billing customer", slog.String("user_uid", user.UUID))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("no billing account found for user"))
		return
	case errors.Is(err, paymentprovider.ErrNotConfigured):
		log.Error("payment processor is not configured", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("payment processor is not configured"))
		return
	default:
		log.Error("failed to create portal session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to create portal session"))
		return
	}

	render.JSON(w, r, response.URLResponse{URL: portalURL})
}
