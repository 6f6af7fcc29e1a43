// Package checkout обрабатывает создание сессии оплаты подписки.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/entitlement-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

// Request тело запроса. Цена не принимается от клиента.
type Request struct {
	ReturnURL string `json:"return_url,omitempty" validate:"omitempty,url"`
}

// Service создаёт сессии оплаты.
type Service interface {
	Checkout(ctx context.Context, user *models.User, returnURL string) (string, error)
}

// Handler обрабатывает запросы на создание сессии оплаты.
type Handler struct {
	log         *slog.Logger
	service     Service
	allowedHost string
	validate    *validator.Validate
}

// New создает новый экземпляр Handler. return_url принимается только на хосте successURL.
func New(log *slog.Logger, service Service, successURL string) *Handler {
	var host string
	if u, err := url.Parse(successURL); err == nil {
		host = u.Host
	}
	return &Handler{
		log:         log,
		service:     service,
		allowedHost: host,
		validate:    validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать сессию оплаты
// @Description Создаёт Stripe Checkout для подписки по цене из конфигурации сервера.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request false "Адрес возврата после оплаты"
// @Success 200 {object} response.URLResponse "Адрес страницы оплаты"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /create-checkout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	req.ReturnURL = strings.TrimSpace(req.ReturnURL)

	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		render.JSON(w, r, response.Error("invalid request"))
		return
	}
	if req.ReturnURL != "" && !h.sameHost(req.ReturnURL) {
		log.Warn("foreign return url rejected", slog.String("return_url", req.ReturnURL))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field ReturnURL must point to the application host"))
		return
	}

	user, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		log.Error("user not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	checkoutURL, err := h.service.Checkout(r.Context(), user, req.ReturnURL)
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		msg := "failed to create checkout session"
		if errors.Is(err, paymentprovider.ErrNotConfigured) || errors.Is(err, paymentprovider.ErrPriceNotConfigured) {
			msg = "payment processor is not configured"
		}
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("checkout session created", slog.String("user_uid", user.UUID))
	render.JSON(w, r, response.URLResponse{URL: checkoutURL})
}

func (h *Handler) sameHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return h.allowedHost != "" && strings.EqualFold(u.Host, h.allowedHost)
}
