// Package bulk реализует HTTP-обработчик пакетного создания скидочных кодов.
//
// Каждый элемент создаётся независимо; ответ содержит результат по каждому коду.
package bulk

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// Request список кодов для создания.
type Request struct {
	Codes []models.CodeInput `json:"codes" validate:"required,min=1"`
}

// Result сводка пакетной операции.
type Result struct {
	Created int                     `json:"created"`
	Failed  int                     `json:"failed"`
	Items   []models.BulkCodeResult `json:"items"`
}

// Handler обрабатывает пакетное создание кодов.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс пакетного создания.
type Service interface {
	BulkCreate(ctx context.Context, inputs []models.CodeInput) ([]models.BulkCodeResult, error)
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
// @Summary Пакетное создание скидочных кодов
// @Description Создаёт до 100 кодов за запрос. Ошибка одного кода не отменяет остальные.
// @Tags Codes
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Коды"
// @Success 200 {object} response.Response{data=Result} "Результат по каждому коду"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /codes/bulk [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.codes.bulk"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		response.RenderKind(w, r, apperr.KindInvalidArgument, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.RenderValidation(w, r, err)
		return
	}

	items, err := h.service.BulkCreate(r.Context(), req.Codes)
	if err != nil {
		log.Error("bulk create failed", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	res := Result{Items: items}
	for _, it := range items {
		if it.Error != "" {
			res.Failed++
		} else {
			res.Created++
		}
	}

	log.Info("bulk create finished", slog.Int("created", res.Created), slog.Int("failed", res.Failed))
	render.JSON(w, r, response.OKWithData(res))
}
