package subscription

import (
	"time"

	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// Evaluate вычисляет доступ пользователя на момент now. Чистая функция:
// сохранённому статусу active не доверяет, а всегда сверяет дату окончания.
func Evaluate(rec models.SubscriptionRecord, now time.Time) models.Entitlement {
	ent := models.Entitlement{
		Status:      rec.Status,
		ExpiryDate:  rec.ExpiryDate,
		PaymentDate: rec.PaymentDate,
		At:          now,
	}
	if ent.Status == "" {
		ent.Status = models.SubscriptionNone
	}

	switch {
	case !rec.PaymentStatus || ent.Status == models.SubscriptionNone:
		ent.Active = false
	case ent.Status == models.SubscriptionExpired:
		ent.Active = false
	case rec.ExpiryDate != nil && now.After(*rec.ExpiryDate):
		ent.Active = false
		ent.Status = models.SubscriptionExpired
		ent.NeedsExpire = true
	default:
		ent.Active = true
	}
	return ent
}

// ExpiryFor возвращает дату окончания периода, оплаченного в paidAt.
func ExpiryFor(paidAt time.Time, periodYears int) time.Time {
	return paidAt.AddDate(periodYears, 0, 0)
}
