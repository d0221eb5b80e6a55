// Package checkout реализует HTTP-обработчик создания сессии оплаты.
//
// Сумма принимается в основных единицах валюты (100.00) и переводится в
// минимальные перед расчётом скидки. Ответ содержит ссылку на страницу оплаты
// провайдера и посчитанные суммы.
package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/billing-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	checkoutsvc "github.com/magabrotheeeer/billing-gateway/internal/services/checkout"
)

// Request параметры оплаты.
type Request struct {
	Amount     float64 `json:"amount" validate:"required,gt=0" example:"100.00"`
	Currency   string  `json:"currency,omitempty" validate:"omitempty,len=3" example:"usd"`
	CouponCode string  `json:"coupon_code,omitempty" validate:"max=64" example:"SAVE20"`
}

// Result созданная сессия и суммы в основных единицах валюты.
type Result struct {
	SessionID       string  `json:"session_id"`
	URL             string  `json:"url"`
	CheckoutID      string  `json:"checkout_id"`
	CouponCode      string  `json:"coupon_code,omitempty"`
	DiscountPercent float64 `json:"discount_percent"`
	OriginalAmount  float64 `json:"original_amount"`
	DiscountAmount  float64 `json:"discount_amount"`
	FinalAmount     float64 `json:"final_amount"`
	Currency        string  `json:"currency"`
}

// Handler обрабатывает создание сессий оплаты.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс оркестратора оплаты.
type Service interface {
	CreateCheckout(ctx context.Context, req checkoutsvc.Request) (checkoutsvc.Result, error)
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
// @Summary Создать сессию оплаты
// @Description Применяет купон, считает итоговую сумму и создаёт сессию Stripe Checkout.
// @Tags Payment
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Сумма, валюта и купон"
// @Success 200 {object} response.Response{data=Result} "Сессия создана"
// @Failure 400 {object} response.ErrorResponse "Некорректная сумма или купон"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка провайдера или сервера"
// @Router /payment/create-checkout-session [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.checkout"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFrom(r.Context())
	if !ok {
		log.Error("user id not found in context")
		response.RenderKind(w, r, apperr.KindUnauthenticated, "unauthorized")
		return
	}

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

	amount, err := checkoutsvc.ToMinorUnits(req.Amount)
	if err != nil {
		response.RenderError(w, r, err)
		return
	}

	res, err := h.service.CreateCheckout(r.Context(), checkoutsvc.Request{
		UserID:     userID,
		Amount:     amount,
		Currency:   req.Currency,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		log.Error("failed to create checkout session", slog.String("user_id", userID), sl.Err(err))
		response.RenderError(w, r, err)
		return
	}

	render.JSON(w, r, response.OKWithData(Result{
		SessionID:       res.SessionID,
		URL:             res.URL,
		CheckoutID:      res.CheckoutID,
		CouponCode:      res.CouponCode,
		DiscountPercent: res.DiscountPercent,
		OriginalAmount:  checkoutsvc.FromMinorUnits(res.OriginalAmount),
		DiscountAmount:  checkoutsvc.FromMinorUnits(res.DiscountAmount),
		FinalAmount:     checkoutsvc.FromMinorUnits(res.FinalAmount),
		Currency:        res.Currency,
	}))
}
