// Package list реализует HTTP-обработчик получения всех скидочных кодов.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// Handler обрабатывает запросы на список кодов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс получения списка кодов.
type Service interface {
	List(ctx context.Context) ([]models.DiscountCode, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Список скидочных кодов
// @Description Возвращает все коды, новые первыми.
// @Tags Codes
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]models.DiscountCode} "Список кодов"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /codes [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.codes.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	codes, err := h.service.List(r.Context())
	if err != nil {
		log.Error("failed to list discount codes", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}
	if codes == nil {
		codes = []models.DiscountCode{}
	}

	render.JSON(w, r, response.OKWithData(codes))
}
