// Package paymentprovider реализует клиент платёжного провайдера Stripe:
// клиенты, сессии оплаты и проверку подписи вебхуков.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// ErrNotConfigured возвращается, если не задан секретный ключ или секрет вебхука.
var ErrNotConfigured = errors.New("payment provider is not configured")

// Client клиент Stripe с автоматом защиты от каскадных сбоев.
type Client struct {
	api           *client.API
	cb            *gobreaker.CircuitBreaker[any]
	log           *slog.Logger
	webhookSecret string
	tolerance     time.Duration
	successURL    string
	cancelURL     string
	productName   string
}

// NewClient создаёт клиент провайдера. Пустой APIURL означает боевой адрес Stripe.
func NewClient(cfg config.Stripe, log *slog.Logger) (*Client, error) {
	const op = "paymentprovider.NewClient"
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	backend := func(t stripe.SupportedBackend) stripe.Backend {
		bc := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
			LeveledLogger:     &leveledLogger{log: log},
		}
		if cfg.APIURL != "" {
			bc.URL = stripe.String(cfg.APIURL)
		}
		return stripe.GetBackendWithConfig(t, bc)
	}

	c := &Client{
		api: client.New(cfg.SecretKey, &stripe.Backends{
			API:     backend(stripe.APIBackend),
			Connect: backend(stripe.ConnectBackend),
			Uploads: backend(stripe.UploadsBackend),
		}),
		log:           log,
		webhookSecret: cfg.WebhookSecret,
		tolerance:     cfg.WebhookTolerance,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		productName:   cfg.ProductName,
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: isSuccessful,
	})
	return c, nil
}

// CreateCustomer создаёт клиента провайдера для пользователя. Повторный вызов
// для того же пользователя возвращает того же клиента.
func (c *Client) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	const op = "paymentprovider.CreateCustomer"

	params := &stripe.CustomerParams{
		Email: stripe.String(p.Email),
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	params.Context = ctx
	params.AddMetadata(models.MetaUserID, p.UserID)
	params.SetIdempotencyKey("customer:" + p.UserID)

	cus, err := call(c, func() (*stripe.Customer, error) {
		return c.api.Customers.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return cus.ID, nil
}

// CreateCheckoutSession создаёт сессию оплаты. Метаданные прикрепляются и к сессии,
// и к её платежу, чтобы оба события вебхука несли одинаковый ключ.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	const op = "paymentprovider.CreateCheckoutSession"

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(c.productName),
					},
					UnitAmount: stripe.Int64(p.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: p.Metadata,
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if userID := p.Metadata[models.MetaUserID]; userID != "" {
		params.ClientReferenceID = stripe.String(userID)
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	s, err := call(c, func() (*stripe.CheckoutSession, error) {
		return c.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sessionFromStripe(s), nil
}

// GetSession возвращает сессию оплаты по ID.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	const op = "paymentprovider.GetSession"

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := call(c, func() (*stripe.CheckoutSession, error) {
		return c.api.CheckoutSessions.Get(id, params)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sessionFromStripe(s), nil
}

// call выполняет запрос через автомат и приводит ошибки к таксономии приложения.
func call[T any](c *Client, fn func() (T, error)) (T, error) {
	res, err := c.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		var zero T
		return zero, mapError(err)
	}
	return res.(T), nil
}

func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}

func mapError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Upstream("payment provider unavailable", err)
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusNotFound {
			return apperr.Wrap(apperr.KindNotFound, "payment session not found", err)
		}
		msg := se.Msg
		if msg == "" {
			msg = "payment provider error"
		}
		return apperr.Upstream(msg, err)
	}
	return apperr.Upstream("payment provider unavailable", err)
}

func sessionFromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.Created > 0 {
		out.Created = time.Unix(s.Created, 0).UTC()
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	return out
}

func paymentIntentFromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Metadata: pi.Metadata,
	}
	if pi.Created > 0 {
		out.Created = time.Unix(pi.Created, 0).UTC()
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}

// leveledLogger направляет журнал SDK в slog.
type leveledLogger struct {
	log *slog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...), slog.String("component", "stripe"))
}
