// Package subscription реализует машину состояний подписки пользователя:
// применение успешных платежей, ленивое истечение и сверку с провайдером.
//
// Состояния none → active → expired; в active можно вернуться из любого
// состояния новым платежом. Каждый платёж применяется не более одного раза:
// ключ платежа проверяется и сохраняется одной атомарной операцией хранилища.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// Источники перехода, для журналов и метрик.
const (
	SourceWebhook = "webhook"
	SourceVerify  = "verify"
	SourceRead    = "read"
)

var (
	// ErrUserNotFound пользователь не найден.
	ErrUserNotFound = apperr.NotFound("user not found")
	// ErrInvalidUserID идентификатор пользователя имеет неверный формат.
	ErrInvalidUserID = apperr.InvalidArgument("invalid user id")
	// ErrSessionNotFound сессия оплаты не найдена или принадлежит другому пользователю.
	ErrSessionNotFound = apperr.NotFound("payment session not found")
)

// Repository хранилище записей подписки.
type Repository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ApplyPayment(ctx context.Context, userID, ref string, paidAt, expiresAt time.Time) (*models.User, bool, error)
	ExpireSubscription(ctx context.Context, userID string, now time.Time) (bool, error)
}

// SessionGetter читает сессию оплаты у провайдера.
type SessionGetter interface {
	GetSession(ctx context.Context, id string) (*paymentprovider.Session, error)
}

// Publisher публикует события подписки.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Outcome результат применения платежа.
type Outcome struct {
	Applied     bool
	Entitlement models.Entitlement
}

// Service машина состояний подписки.
type Service struct {
	repo      Repository
	provider  SessionGetter
	publisher Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger

	periodYears int
	reconcile   string
	timeout     time.Duration
	now         func() time.Time

	wg sync.WaitGroup
}

// NewService создаёт сервис. publisher и m могут быть nil.
func NewService(repo Repository, provider SessionGetter, publisher Publisher, m *metrics.Metrics,
	log *slog.Logger, cfg config.Subscription) *Service {
	period := cfg.PeriodYears
	if period <= 0 {
		period = 1
	}
	mode := cfg.ExpiryReconcile
	if mode == "" {
		mode = config.ExpiryReconcileAsync
	}
	timeout := cfg.ReconcileTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		repo:        repo,
		provider:    provider,
		publisher:   publisher,
		metrics:     m,
		log:         log,
		periodYears: period,
		reconcile:   mode,
		timeout:     timeout,
		now:         time.Now,
	}
}

// SetClock подменяет источник времени.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Wait дожидается фоновых сохранений истечения.
func (s *Service) Wait() {
	s.wg.Wait()
}

// RecordPayment применяет успешный платёж с ключом paymentRef. Нулевой paidAt
// означает время обработки. Повторное применение того же ключа ничего не меняет.
func (s *Service) RecordPayment(ctx context.Context, userID, paymentRef string, paidAt time.Time, source string) (Outcome, error) {
	const op = "subscription.RecordPayment"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID), slog.String("payment_ref", paymentRef))

	if paymentRef == "" {
		return Outcome{}, apperr.InvalidArgument("payment reference is required")
	}
	now := s.now()
	if paidAt.IsZero() {
		paidAt = now
	}
	expiresAt := ExpiryFor(paidAt, s.periodYears)

	user, applied, err := s.repo.ApplyPayment(ctx, userID, paymentRef, paidAt, expiresAt)
	if err != nil {
		return Outcome{}, mapUserErr(op, err)
	}

	out := Outcome{Applied: applied, Entitlement: Evaluate(user.Subscription, now)}
	if !applied {
		log.Info("payment already applied", slog.String("source", source))
		return out, nil
	}

	log.Info("payment applied",
		slog.String("source", source),
		slog.Time("expires_at", expiresAt),
	)
	s.observe(string(models.SubscriptionActive), source)
	s.publish(ctx, RoutingKeyActivated, Event{
		Type:       RoutingKeyActivated,
		UserID:     userID,
		PaymentRef: paymentRef,
		ExpiryDate: user.Subscription.ExpiryDate,
		OccurredAt: now.UTC(),
	})
	return out, nil
}

// Status возвращает текущий доступ пользователя. Если сохранённый статус устарел,
// переход в expired сохраняется согласно режиму сверки.
func (s *Service) Status(ctx context.Context, userID string) (models.Entitlement, error) {
	const op = "subscription.Status"

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return models.Entitlement{}, mapUserErr(op, err)
	}

	now := s.now()
	ent := Evaluate(user.Subscription, now)
	if ent.NeedsExpire {
		s.reconcileExpiry(ctx, userID, now)
	}
	return ent, nil
}

// VerifySession сверяет сессию оплаты с провайдером после возврата пользователя.
// Оплаченная сессия применяется с тем же ключом, что и вебхук.
func (s *Service) VerifySession(ctx context.Context, userID, sessionID string) (models.Entitlement, error) {
	const op = "subscription.VerifySession"

	if sessionID == "" {
		return models.Entitlement{}, apperr.InvalidArgument("session id is required")
	}

	sess, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return models.Entitlement{}, ErrSessionNotFound
		}
		return models.Entitlement{}, fmt.Errorf("%s: %w", op, err)
	}
	if sess.Metadata[models.MetaUserID] != userID {
		return models.Entitlement{}, ErrSessionNotFound
	}
	if !sess.Paid() {
		return s.Status(ctx, userID)
	}

	out, err := s.RecordPayment(ctx, userID, PaymentRef(sess.Metadata, sess.ID), time.Time{}, SourceVerify)
	if err != nil {
		return models.Entitlement{}, err
	}
	return out.Entitlement, nil
}

func (s *Service) reconcileExpiry(ctx context.Context, userID string, now time.Time) {
	switch s.reconcile {
	case config.ExpiryReconcileOff:
		return
	case config.ExpiryReconcileSync:
		s.expire(ctx, userID, now)
	default:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
			defer cancel()
			s.expire(ctx, userID, now)
		}()
	}
}

func (s *Service) expire(ctx context.Context, userID string, now time.Time) {
	const op = "subscription.expire"
	log := s.log.With(slog.String("op", op), slog.String("user_id", userID))

	changed, err := s.repo.ExpireSubscription(ctx, userID, now)
	if err != nil {
		log.Error("failed to persist expiry", sl.Err(err))
		return
	}
	if !changed {
		return
	}

	log.Info("subscription expired")
	s.observe(string(models.SubscriptionExpired), SourceRead)
	s.publish(ctx, RoutingKeyExpired, Event{
		Type:       RoutingKeyExpired,
		UserID:     userID,
		OccurredAt: now.UTC(),
	})
}

func (s *Service) observe(to, source string) {
	if s.metrics != nil {
		s.metrics.SubscriptionTransitions.WithLabelValues(to, source).Inc()
	}
}

func (s *Service) publish(ctx context.Context, key string, evt Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, evt); err != nil {
		s.log.Warn("failed to publish subscription event",
			slog.String("routing_key", key),
			slog.String("user_id", evt.UserID),
			sl.Err(err),
		)
	}
}

// PaymentRef возвращает ключ идемпотентности платежа: checkout_id из метаданных,
// а при его отсутствии ID объекта провайдера.
func PaymentRef(md map[string]string, fallback string) string {
	if ref := md[models.MetaCheckoutID]; ref != "" {
		return ref
	}
	return fallback
}

func mapUserErr(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidID):
		return ErrInvalidUserID
	case errors.Is(err, storage.ErrNotFound):
		return ErrUserNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
