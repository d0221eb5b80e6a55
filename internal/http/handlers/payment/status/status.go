// Package status реализует HTTP-обработчик получения статуса подписки.
//
// Статус вычисляется на момент запроса с учётом срока действия. Пользователь
// видит только свой статус, администратор любой.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// Handler обрабатывает запросы статуса подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс получения статуса.
type Service interface {
	Status(ctx context.Context, userID string) (models.Entitlement, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Статус подписки
// @Tags Payment
// @Produce  json
// @Security BearerAuth
// @Param userId path string true "ID пользователя"
// @Success 200 {object} response.Response{data=models.Entitlement} "Текущий статус"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Чужой статус"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /payment/status/{userId} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.status"
	userID := chi.URLParam(r, "userId")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_id", userID),
	)

	callerID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		response.RenderKind(w, r, apperr.KindUnauthenticated, "unauthorized")
		return
	}
	if callerID != userID && middlewarectx.RoleFrom(r.Context()) != models.RoleAdmin {
		log.Warn("status requested for another user", slog.String("caller_id", callerID))
		response.RenderKind(w, r, apperr.KindForbidden, "access denied")
		return
	}

	ent, err := h.service.Status(r.Context(), userID)
	if err != nil {
		log.Error("failed to get subscription status", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	render.JSON(w, r, response.OKWithData(ent))
}
