// Package checkout собирает сессию оплаты: проверяет купон, считает итоговую
// сумму и создаёт сессию у провайдера. Суммы и купон хранятся только
// в метаданных сессии провайдера.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/services/coupon"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

var (
	// ErrInvalidCoupon купон не найден или отключён.
	ErrInvalidCoupon = apperr.InvalidArgument("invalid coupon code")
	// ErrNothingToCharge скидка купона покрывает всю сумму.
	ErrNothingToCharge = apperr.InvalidArgument("coupon covers the full amount, nothing to charge")
)

// UserRepository хранилище пользователей.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) (bool, error)
}

// CouponValidator проверяет купоны.
type CouponValidator interface {
	Validate(ctx context.Context, code string) (models.CouponValidation, error)
}

// Provider платёжный провайдер.
type Provider interface {
	CreateCustomer(ctx context.Context, p paymentprovider.CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, p paymentprovider.CheckoutParams) (*paymentprovider.Session, error)
}

// Request запрос на оплату. Amount в минимальных единицах валюты.
type Request struct {
	UserID     string
	Amount     int64
	Currency   string
	CouponCode string
}

// Result созданная сессия оплаты и посчитанные суммы.
type Result struct {
	SessionID       string
	URL             string
	CheckoutID      string
	CouponCode      string
	DiscountPercent float64
	OriginalAmount  int64
	DiscountAmount  int64
	FinalAmount     int64
	Currency        string
}

// Service оркестратор оплаты.
type Service struct {
	users           UserRepository
	coupons         CouponValidator
	provider        Provider
	metrics         *metrics.Metrics
	log             *slog.Logger
	defaultCurrency string
	newID           func() string
}

// NewService создаёт сервис.
func NewService(users UserRepository, coupons CouponValidator, provider Provider, m *metrics.Metrics,
	log *slog.Logger, defaultCurrency string) *Service {
	return &Service{
		users:           users,
		coupons:         coupons,
		provider:        provider,
		metrics:         m,
		log:             log,
		defaultCurrency: strings.ToLower(defaultCurrency),
		newID:           uuid.NewString,
	}
}

// CreateCheckout создаёт сессию оплаты. Ничего не сохраняет локально, кроме
// привязки клиента провайдера к пользователю.
func (s *Service) CreateCheckout(ctx context.Context, req Request) (Result, error) {
	const op = "checkout.CreateCheckout"
	log := s.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	if req.Amount <= 0 {
		return Result{}, apperr.InvalidArgument("amount must be greater than zero")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if len(currency) != 3 {
		return Result{}, apperr.InvalidArgument("currency must be a 3-letter ISO code")
	}

	res := Result{OriginalAmount: req.Amount, Currency: currency}
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		v, err := s.coupons.Validate(ctx, code)
		if err != nil {
			if errors.Is(err, coupon.ErrNotFound) || errors.Is(err, coupon.ErrInactive) ||
				apperr.Is(err, apperr.KindInvalidArgument) {
				s.observe("invalid_coupon")
				return Result{}, apperr.Wrap(apperr.KindInvalidArgument, ErrInvalidCoupon.Message, err)
			}
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		res.CouponCode = v.Code
		res.DiscountPercent = v.DiscountPercent
	}

	res.DiscountAmount, res.FinalAmount = ComputeAmounts(req.Amount, res.DiscountPercent)
	if res.FinalAmount == 0 {
		s.observe("invalid_coupon")
		log.Info("coupon discount leaves nothing to charge", slog.String("coupon_code", res.CouponCode))
		return Result{}, ErrNothingToCharge
	}

	customerID, err := s.ensureCustomer(ctx, req.UserID)
	if err != nil {
		s.observe("error")
		return Result{}, err
	}

	res.CheckoutID = s.newID()
	intent := models.CheckoutIntent{
		CheckoutID:     res.CheckoutID,
		UserID:         req.UserID,
		CouponCode:     res.CouponCode,
		OriginalAmount: res.OriginalAmount,
		DiscountAmount: res.DiscountAmount,
		FinalAmount:    res.FinalAmount,
		Currency:       currency,
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, paymentprovider.CheckoutParams{
		CustomerID:     customerID,
		Amount:         res.FinalAmount,
		Currency:       currency,
		IdempotencyKey: res.CheckoutID,
		Metadata:       intent.ToMetadata(),
	})
	if err != nil {
		s.observe("error")
		log.Error("failed to create checkout session", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	res.SessionID = sess.ID
	res.URL = sess.URL
	s.observe("created")
	log.Info("checkout session created",
		slog.String("session_id", sess.ID),
		slog.String("checkout_id", res.CheckoutID),
		slog.Int64("final_amount", res.FinalAmount),
	)
	return res, nil
}

// ensureCustomer возвращает клиента провайдера, создавая его при первом обращении.
// Привязка записывается один раз; проигравший гонку использует сохранённое значение.
func (s *Service) ensureCustomer(ctx context.Context, userID string) (string, error) {
	const op = "checkout.ensureCustomer"

	user, err := s.getUser(ctx, op, userID)
	if err != nil {
		return "", err
	}
	if id := user.Subscription.StripeCustomerID; id != "" {
		return id, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, paymentprovider.CustomerParams{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	stored, err := s.users.SetStripeCustomerID(ctx, user.ID, customerID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if stored {
		return customerID, nil
	}

	user, err = s.getUser(ctx, op, userID)
	if err != nil {
		return "", err
	}
	if id := user.Subscription.StripeCustomerID; id != "" {
		return id, nil
	}
	return customerID, nil
}

func (s *Service) getUser(ctx context.Context, op, userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, storage.ErrInvalidID):
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "invalid user id", err)
	case errors.Is(err, storage.ErrNotFound):
		return nil, apperr.Wrap(apperr.KindNotFound, "user not found", err)
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.CheckoutSessions.WithLabelValues(outcome).Inc()
	}
}
