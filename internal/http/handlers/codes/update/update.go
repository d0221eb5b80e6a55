// Package update реализует HTTP-обработчик частичного обновления скидочного кода.
//
// Передаются только изменяемые поля; отсутствующие поля не меняются.
package update

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// Handler обрабатывает запросы на обновление кода.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс обновления кода.
type Service interface {
	Update(ctx context.Context, id string, patch models.CodePatch) (models.DiscountCode, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Обновить скидочный код
// @Tags Codes
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID кода"
// @Param request body models.CodePatch true "Изменяемые поля"
// @Success 200 {object} response.Response{data=models.DiscountCode} "Обновлённый код"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 404 {object} response.ErrorResponse "Код не найден"
// @Failure 409 {object} response.ErrorResponse "Код уже существует"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /codes/{id} [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.codes.update"
	id := chi.URLParam(r, "id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("id", id),
	)

	var patch models.CodePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		response.RenderKind(w, r, apperr.KindInvalidArgument, "invalid request body")
		return
	}

	if err := h.validate.Struct(patch); err != nil {
		response.RenderValidation(w, r, err)
		return
	}

	code, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		log.Error("failed to update discount code", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	log.Info("discount code updated")
	render.JSON(w, r, response.OKWithData(code))
}
