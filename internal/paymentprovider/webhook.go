package paymentprovider

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
)

// ErrInvalidSignature подпись вебхука не прошла проверку.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ParseWebhook проверяет подпись и разбирает событие. Для событий, которые сервис
// не обрабатывает, объект не декодируется.
func (c *Client) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	const op = "paymentprovider.ParseWebhook"

	tolerance := c.tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                tolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op,
			apperr.Wrap(apperr.KindInvalidArgument, ErrInvalidSignature.Error(), errors.Join(ErrInvalidSignature, err)))
	}

	out := &Event{
		ID:   evt.ID,
		Type: string(evt.Type),
	}
	if evt.Created > 0 {
		out.Created = time.Unix(evt.Created, 0).UTC()
	}
	if evt.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutSessionCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%s: %w", op, apperr.Wrap(apperr.KindInvalidArgument, "malformed event payload", err))
		}
		out.Session = sessionFromStripe(&s)
	case EventPaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%s: %w", op, apperr.Wrap(apperr.KindInvalidArgument, "malformed event payload", err))
		}
		out.PaymentIntent = paymentIntentFromStripe(&pi)
	}
	return out, nil
}
