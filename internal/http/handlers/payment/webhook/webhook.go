// Package webhook реализует HTTP-обработчик уведомлений платёжного провайдера.
//
// Тело запроса читается один раз целиком до любой обработки, затем проверяется
// подпись. Неверная подпись даёт 400 без изменения состояния. Сбой после
// проверки даёт 500, чтобы провайдер повторил доставку.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/billing-gateway/internal/http/response"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
)

// MaxPayloadBytes предельный размер тела уведомления.
const MaxPayloadBytes = 65536

// SignatureHeader заголовок с подписью Stripe.
const SignatureHeader = "Stripe-Signature"

// Parser проверяет подпись и разбирает событие.
type Parser interface {
	ParseWebhook(payload []byte, signatureHeader string) (*paymentprovider.Event, error)
}

// Dispatcher применяет событие.
type Dispatcher interface {
	HandleEvent(ctx context.Context, evt *paymentprovider.Event) (string, error)
}

// Handler обрабатывает уведомления провайдера.
type Handler struct {
	log        *slog.Logger
	parser     Parser
	dispatcher Dispatcher
}

// New создает новый Handler.
func New(log *slog.Logger, parser Parser, dispatcher Dispatcher) *Handler {
	return &Handler{log: log, parser: parser, dispatcher: dispatcher}
}

// ServeHTTP godoc
// @Summary Вебхук Stripe
// @Description Принимает подписанные события checkout.session.completed и payment_intent.succeeded.
// @Tags Payment
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись Stripe"
// @Success 200 {object} response.Response "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или тело"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки, провайдер повторит"
// @Router /payment/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("webhook payload too large", slog.Int64("limit", tooLarge.Limit))
			response.RenderKind(w, r, apperr.KindInvalidArgument, "payload too large")
			return
		}
		log.Error("failed to read webhook body", sl.Err(err))
		response.RenderKind(w, r, apperr.KindInvalidArgument, "invalid request body")
		return
	}

	evt, err := h.parser.ParseWebhook(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, paymentprovider.ErrInvalidSignature) {
			log.Warn("webhook signature rejected", sl.Err(err))
		} else {
			log.Error("failed to parse webhook", sl.Err(err))
		}
		response.RenderError(w, r, err)
		return
	}
	log = log.With(slog.String("event_id", evt.ID), slog.String("event_type", evt.Type))

	result, err := h.dispatcher.HandleEvent(r.Context(), evt)
	if err != nil {
		log.Error("failed to handle webhook event", sl.Err(err))
		response.RenderKind(w, r, apperr.KindInternal, "failed to process event")
		return
	}

	log.Info("webhook event handled", slog.String("result", result))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"received": true,
		"result":   result,
	}))
}
