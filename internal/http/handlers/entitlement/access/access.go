// Package access закрытый премиум-маршрут. Доступ проверяет RequirePremium.
package access

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// Response ответ премиум-маршрута.
type Response struct {
	Premium bool `json:"premium" example:"true"`
}

type Handler struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Проверить премиум-доступ
// @Tags Entitlement
// @Produce  json
// @Success 200 {object} Response
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Нужна подписка"
// @Router /premium/access [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Response{Premium: true})
}
