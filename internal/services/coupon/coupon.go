// Package coupon реализует хранилище скидочных кодов: проверку купона
// и административное управление кодами.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// MaxBulkSize максимальное число кодов в одной пакетной операции.
const MaxBulkSize = 100

var (
	// ErrNotFound купон не найден.
	ErrNotFound = apperr.NotFound("coupon not found")
	// ErrInactive купон найден, но отключён.
	ErrInactive = apperr.InvalidArgument("coupon is inactive")
)

// Repository хранилище скидочных кодов.
type Repository interface {
	CreateCode(ctx context.Context, code models.DiscountCode) (models.DiscountCode, error)
	GetCode(ctx context.Context, id string) (models.DiscountCode, error)
	FindCode(ctx context.Context, code string) (models.DiscountCode, error)
	ListCodes(ctx context.Context) ([]models.DiscountCode, error)
	UpdateCode(ctx context.Context, id string, patch models.CodePatch) (models.DiscountCode, error)
	DeleteCode(ctx context.Context, id string) (models.DiscountCode, error)
}

// Cache кеш результатов проверки купонов. Запись выполняется только при
// неизменном поколении ключа, иначе результат, прочитанный до изменения кода,
// пережил бы инвалидацию.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Generation(ctx context.Context, key string) (int64, error)
	SetIfGeneration(ctx context.Context, key string, gen int64, value any, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// Service бизнес-логика скидочных кодов.
type Service struct {
	repo     Repository
	cache    Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewService создаёт сервис. cache может быть nil.
func NewService(repo Repository, cache Cache, cacheTTL time.Duration, m *metrics.Metrics, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  m,
		log:      log,
	}
}

func cacheKey(code string) string {
	return "coupon:" + strings.ToLower(code)
}

// Validate проверяет купон без учёта регистра. Ничего не изменяет.
func (s *Service) Validate(ctx context.Context, code string) (models.CouponValidation, error) {
	const op = "coupon.Validate"
	log := s.log.With(slog.String("op", op))

	code = strings.TrimSpace(code)
	if code == "" {
		return models.CouponValidation{}, apperr.InvalidArgument("coupon code is required")
	}

	key := cacheKey(code)
	cacheable := s.cache != nil
	var gen int64
	if cacheable {
		var cached models.CouponValidation
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn("coupon cache read failed", sl.Err(err))
		}
		if found {
			s.observe("valid")
			return cached, nil
		}
		gen, err = s.cache.Generation(ctx, key)
		if err != nil {
			log.Warn("coupon cache generation read failed", sl.Err(err))
			cacheable = false
		}
	}

	dc, err := s.repo.FindCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.observe("not_found")
			return models.CouponValidation{}, ErrNotFound
		}
		return models.CouponValidation{}, fmt.Errorf("%s: %w", op, err)
	}
	if !dc.IsActive {
		s.observe("inactive")
		return models.CouponValidation{}, ErrInactive
	}

	res := models.CouponValidation{
		Code:            dc.Code,
		DiscountPercent: dc.Discount,
		Description:     dc.Description,
	}
	if cacheable {
		stored, err := s.cache.SetIfGeneration(ctx, key, gen, res, s.cacheTTL)
		switch {
		case err != nil:
			log.Warn("coupon cache write failed", sl.Err(err))
		case !stored:
			log.Debug("coupon changed during validation, result not cached")
		}
	}
	s.observe("valid")
	return res, nil
}

// Create создаёт код. Код активен, если is_active не передан.
func (s *Service) Create(ctx context.Context, in models.CodeInput) (models.DiscountCode, error) {
	const op = "coupon.Create"

	code := strings.TrimSpace(in.Code)
	if code == "" {
		return models.DiscountCode{}, apperr.InvalidArgument("code is required")
	}
	if err := checkDiscount(in.Discount); err != nil {
		return models.DiscountCode{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	created, err := s.repo.CreateCode(ctx, models.DiscountCode{
		Code:        code,
		Discount:    in.Discount,
		Description: in.Description,
		IsActive:    active,
	})
	if err != nil {
		return models.DiscountCode{}, mapStorageErr(op, err)
	}
	s.invalidate(ctx, code)
	return created, nil
}

// BulkCreate создаёт коды по одному и возвращает результат для каждого.
func (s *Service) BulkCreate(ctx context.Context, inputs []models.CodeInput) ([]models.BulkCodeResult, error) {
	if len(inputs) == 0 {
		return nil, apperr.InvalidArgument("codes list is empty")
	}
	if len(inputs) > MaxBulkSize {
		return nil, apperr.InvalidArgument(fmt.Sprintf("at most %d codes per request", MaxBulkSize))
	}

	results := make([]models.BulkCodeResult, 0, len(inputs))
	for _, in := range inputs {
		res := models.BulkCodeResult{Code: in.Code}
		created, err := s.Create(ctx, in)
		if err != nil {
			res.Error = string(apperr.KindOf(err))
			res.Reason = apperr.MessageOf(err)
		} else {
			res.Item = &created
		}
		results = append(results, res)
	}
	return results, nil
}

// Get возвращает код по ID.
func (s *Service) Get(ctx context.Context, id string) (models.DiscountCode, error) {
	const op = "coupon.Get"
	dc, err := s.repo.GetCode(ctx, id)
	if err != nil {
		return models.DiscountCode{}, mapStorageErr(op, err)
	}
	return dc, nil
}

// List возвращает все коды.
func (s *Service) List(ctx context.Context) ([]models.DiscountCode, error) {
	const op = "coupon.List"
	codes, err := s.repo.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return codes, nil
}

// Update применяет частичное обновление кода.
func (s *Service) Update(ctx context.Context, id string, patch models.CodePatch) (models.DiscountCode, error) {
	const op = "coupon.Update"

	if patch.Empty() {
		return models.DiscountCode{}, apperr.InvalidArgument("nothing to update")
	}
	if patch.Discount != nil {
		if err := checkDiscount(*patch.Discount); err != nil {
			return models.DiscountCode{}, err
		}
	}
	if patch.Code != nil {
		trimmed := strings.TrimSpace(*patch.Code)
		if trimmed == "" {
			return models.DiscountCode{}, apperr.InvalidArgument("code must not be empty")
		}
		patch.Code = &trimmed
	}

	before, err := s.repo.GetCode(ctx, id)
	if err != nil {
		return models.DiscountCode{}, mapStorageErr(op, err)
	}
	updated, err := s.repo.UpdateCode(ctx, id, patch)
	if err != nil {
		return models.DiscountCode{}, mapStorageErr(op, err)
	}
	s.invalidate(ctx, before.Code, updated.Code)
	return updated, nil
}

// Delete удаляет код.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "coupon.Delete"
	deleted, err := s.repo.DeleteCode(ctx, id)
	if err != nil {
		return mapStorageErr(op, err)
	}
	s.invalidate(ctx, deleted.Code)
	return nil
}

func (s *Service) invalidate(ctx context.Context, codes ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(codes))
	for _, c := range codes {
		keys = append(keys, cacheKey(c))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn("coupon cache invalidation failed", slog.String("op", "coupon.invalidate"), sl.Err(err))
	}
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.CouponValidations.WithLabelValues(result).Inc()
	}
}

func checkDiscount(d float64) error {
	if math.IsNaN(d) || d < 0 || d > 100 {
		return apperr.InvalidArgument("discount must be between 0 and 100")
	}
	return nil
}

func mapStorageErr(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidID):
		return apperr.Wrap(apperr.KindInvalidArgument, "invalid id", err)
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "discount code not found", err)
	case errors.Is(err, storage.ErrDuplicate):
		return apperr.Wrap(apperr.KindConflict, "discount code already exists", err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
