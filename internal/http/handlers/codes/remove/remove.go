// Package remove реализует HTTP-обработчик удаления скидочного кода.
package remove

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
)

// Handler обрабатывает запросы на удаление кода.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс удаления кода.
type Service interface {
	Delete(ctx context.Context, id string) error
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Удалить скидочный код
// @Tags Codes
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID кода"
// @Success 200 {object} response.Response "Код удалён"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 404 {object} response.ErrorResponse "Код не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /codes/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.codes.remove"
	id := chi.URLParam(r, "id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("id", id),
	)

	if err := h.service.Delete(r.Context(), id); err != nil {
		log.Info("failed to delete discount code", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	log.Info("discount code deleted")
	render.JSON(w, r, response.OKWithData(map[string]string{"deleted_id": id}))
}
