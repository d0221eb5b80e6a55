// Package read реализует HTTP-обработчик получения скидочного кода по ID.
package read

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// Handler обрабатывает запросы на чтение кода.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс чтения кода.
type Service interface {
	Get(ctx context.Context, id string) (models.DiscountCode, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Получить скидочный код
// @Tags Codes
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID кода"
// @Success 200 {object} response.Response{data=models.DiscountCode} "Код"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 404 {object} response.ErrorResponse "Код не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /codes/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.codes.read"
	id := chi.URLParam(r, "id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("id", id),
	)

	code, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Info("failed to read discount code", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	render.JSON(w, r, response.OKWithData(code))
}
