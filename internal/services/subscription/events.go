package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
)

// Ключи маршрутизации событий подписки.
const (
	RoutingKeyActivated = "subscription.activated"
	RoutingKeyExpired   = "subscription.expired"
)

// Event событие подписки для внешних потребителей.
type Event struct {
	Type       string     `json:"type"`
	UserID     string     `json:"user_id"`
	PaymentRef string     `json:"payment_ref,omitempty"`
	ExpiryDate *time.Time `json:"subscription_expiry_date,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Результаты обработки события вебхука.
const (
	ResultApplied    = "applied"
	ResultDuplicate  = "duplicate"
	ResultUnpaid     = "unpaid"
	ResultUnresolved = "unresolved"
	ResultIgnored    = "ignored"
)

// HandleEvent применяет проверенное событие провайдера. Событие, пользователя
// которого нельзя определить, подтверждается без изменений. Ошибка возвращается
// только при сбое хранилища, чтобы провайдер повторил доставку.
func (s *Service) HandleEvent(ctx context.Context, evt *paymentprovider.Event) (string, error) {
	const op = "subscription.HandleEvent"
	log := s.log.With(slog.String("op", op), slog.String("event_id", evt.ID), slog.String("event_type", evt.Type))

	var md map[string]string
	var objectID string
	switch evt.Type {
	case paymentprovider.EventCheckoutSessionCompleted:
		if evt.Session == nil {
			return s.result(evt.Type, ResultIgnored), nil
		}
		if !evt.Session.Paid() {
			log.Info("checkout completed without payment", slog.String("session_id", evt.Session.ID))
			return s.result(evt.Type, ResultUnpaid), nil
		}
		md, objectID = evt.Session.Metadata, evt.Session.ID
	case paymentprovider.EventPaymentIntentSucceeded:
		if evt.PaymentIntent == nil {
			return s.result(evt.Type, ResultIgnored), nil
		}
		md, objectID = evt.PaymentIntent.Metadata, evt.PaymentIntent.ID
	default:
		return s.result(evt.Type, ResultIgnored), nil
	}

	intent, err := models.CheckoutIntentFromMetadata(md)
	if err != nil {
		log.Warn("malformed checkout metadata", slog.String("object_id", objectID), sl.Err(err))
	}
	userID := intent.UserID
	if userID == "" {
		log.Warn("event has no user reference", slog.String("object_id", objectID))
		return s.result(evt.Type, ResultUnresolved), nil
	}

	out, err := s.RecordPayment(ctx, userID, PaymentRef(md, objectID), time.Time{}, SourceWebhook)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindInvalidArgument) {
			log.Warn("event user reference does not resolve", slog.String("user_id", userID), slog.String("reason", err.Error()))
			return s.result(evt.Type, ResultUnresolved), nil
		}
		s.result(evt.Type, "error")
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if !out.Applied {
		return s.result(evt.Type, ResultDuplicate), nil
	}
	log.Info("payment applied",
		slog.String("user_id", userID),
		slog.String("checkout_id", intent.CheckoutID),
		slog.String("coupon_code", intent.CouponCode),
		slog.Int64("final_amount", intent.FinalAmount),
		slog.String("currency", intent.Currency),
	)
	return s.result(evt.Type, ResultApplied), nil
}

func (s *Service) result(eventType, outcome string) string {
	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
	}
	return outcome
}
