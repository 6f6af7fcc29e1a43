// Package webhook принимает события подписок от Stripe.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/entitlement-service/internal/http/response"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

const bodyLimit = 1 << 20

// ReceivedResponse подтверждение приёма события.
type ReceivedResponse struct {
	Received bool `json:"received"`
}

// Service применяет события подписок.
type Service interface {
	HandleSubscriptionEvent(ctx context.Context, ev *paymentprovider.SubscriptionEvent) error
}

type Handler struct {
	log     *slog.Logger
	service Service
	secret  string
}

func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:     log,
		service: service,
		secret:  secret,
	}
}

// ServeHTTP godoc
// @Summary Вебхук Stripe
// @Description Принимает события customer.subscription.*; подпись проверяется по заголовку Stripe-Signature.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Success 200 {object} ReceivedResponse
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или тело"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки"
// @Failure 503 {object} response.ErrorResponse "Секрет вебхука не настроен"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read request body"))
		return
	}

	ev, err := paymentprovider.ParseSubscriptionEvent(payload, r.Header.Get("Stripe-Signature"), h.secret)
	switch {
	case err == nil:
	case errors.Is(err, paymentprovider.ErrUnhandledEvent):
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "ignored").Inc()
		log.Debug("webhook event ignored", slog.String("type", ev.Type))
		render.JSON(w, r, ReceivedResponse{Received: true})
		return
	case errors.Is(err, paymentprovider.ErrNotConfigured):
		log.Error("webhook secret not configured")
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("webhook secret not configured"))
		return
	case errors.Is(err, paymentprovider.ErrInvalidSignature):
		log.Warn("invalid webhook signature", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	default:
		log.Error("failed to parse webhook event", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid event payload"))
		return
	}

	if err := h.service.HandleSubscriptionEvent(r.Context(), ev); err != nil {
		log.Error("webhook processing failed", slog.String("event_id", ev.ID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("processing failed"))
		return
	}

	render.JSON(w, r, ReceivedResponse{Received: true})
}
