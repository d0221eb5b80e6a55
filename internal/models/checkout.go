package models

import (
	"fmt"
	"strconv"
)

// Ключи метаданных сессии оплаты.
const (
	MetaCheckoutID     = "checkout_id"
	MetaUserID         = "user_id"
	MetaCouponCode     = "coupon_code"
	MetaOriginalAmount = "original_amount"
	MetaDiscountAmount = "discount_amount"
	MetaFinalAmount    = "final_amount"
	MetaCurrency       = "currency"
)

// CheckoutIntent намерение оплаты. Хранится только в метаданных провайдера,
// суммы в минимальных единицах валюты.
type CheckoutIntent struct {
	CheckoutID     string
	UserID         string
	CouponCode     string
	OriginalAmount int64
	DiscountAmount int64
	FinalAmount    int64
	Currency       string
}

// ToMetadata кодирует намерение в метаданные провайдера.
func (c CheckoutIntent) ToMetadata() map[string]string {
	md := map[string]string{
		MetaCheckoutID:     c.CheckoutID,
		MetaUserID:         c.UserID,
		MetaOriginalAmount: strconv.FormatInt(c.OriginalAmount, 10),
		MetaDiscountAmount: strconv.FormatInt(c.DiscountAmount, 10),
		MetaFinalAmount:    strconv.FormatInt(c.FinalAmount, 10),
		MetaCurrency:       c.Currency,
	}
	if c.CouponCode != "" {
		md[MetaCouponCode] = c.CouponCode
	}
	return md
}

// CheckoutIntentFromMetadata восстанавливает намерение из метаданных.
// Отсутствующие суммы считаются нулевыми.
func CheckoutIntentFromMetadata(md map[string]string) (CheckoutIntent, error) {
	const op = "models.CheckoutIntentFromMetadata"
	intent := CheckoutIntent{
		CheckoutID: md[MetaCheckoutID],
		UserID:     md[MetaUserID],
		CouponCode: md[MetaCouponCode],
		Currency:   md[MetaCurrency],
	}
	amounts := []struct {
		key string
		dst *int64
	}{
		{MetaOriginalAmount, &intent.OriginalAmount},
		{MetaDiscountAmount, &intent.DiscountAmount},
		{MetaFinalAmount, &intent.FinalAmount},
	}
	for _, a := range amounts {
		raw, ok := md[a.key]
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return intent, fmt.Errorf("%s: %s: %w", op, a.key, err)
		}
		*a.dst = v
	}
	return intent, nil
}
