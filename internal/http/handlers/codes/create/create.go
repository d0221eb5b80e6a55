// Package create реализует HTTP-обработчик создания скидочного кода (только admin).
package create

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

// Handler управляет HTTP-запросами на создание скидочных кодов.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис скидочных кодов
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики создания кода.
type Service interface {
	Create(ctx context.Context, in models.CodeInput) (models.DiscountCode, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать скидочный код
// @Description Создаёт код со скидкой в процентах (0-100). По умолчанию код активен.
// @Tags Codes
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body models.CodeInput true "Данные кода"
// @Success 201 {object} response.Response{data=models.DiscountCode} "Код создан"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или ошибка валидации"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 409 {object} response.ErrorResponse "Код уже существует"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /codes [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.codes.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.CodeInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		response.RenderKind(w, r, apperr.KindInvalidArgument, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		response.RenderValidation(w, r, err)
		return
	}

	code, err := h.service.Create(r.Context(), req)
	if err != nil {
		log.Error("failed to create discount code", sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	log.Info("discount code created", slog.String("id", code.ID), slog.String("code", code.Code))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(code))
}
