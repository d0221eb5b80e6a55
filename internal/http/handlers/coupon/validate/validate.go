// Package validate реализует HTTP-обработчик проверки купона.
//
// Поиск нечувствителен к регистру; отключённый купон считается недействительным.
package validate

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

// Request код купона.
type Request struct {
	Code string `json:"code" validate:"required,max=64" example:"SAVE20"`
}

// Handler обрабатывает проверку купонов.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс проверки купона.
type Service interface {
	Validate(ctx context.Context, code string) (models.CouponValidation, error)
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
// @Summary Проверить купон
// @Description Возвращает процент скидки по коду купона.
// @Tags Coupon
// @Accept  json
// @Produce  json
// @Param request body Request true "Код купона"
// @Success 200 {object} response.Response{data=models.CouponValidation} "Купон действителен"
// @Failure 400 {object} response.ErrorResponse "Купон отключён или ошибка валидации"
// @Failure 404 {object} response.ErrorResponse "Купон не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /coupon/validate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.coupon.validate"
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

	res, err := h.service.Validate(r.Context(), req.Code)
	if err != nil {
		log.Info("coupon rejected", slog.String("code", req.Code), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	render.JSON(w, r, response.OKWithData(res))
}
