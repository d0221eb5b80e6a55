package checkout

import (
	"math"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
)

// ComputeAmounts считает скидку и итоговую сумму в минимальных единицах валюты:
// discount = round(base*pct/100), final = max(0, base-discount).
func ComputeAmounts(base int64, pct float64) (discount, final int64) {
	discount = int64(math.Round(float64(base) * pct / 100))
	final = max(base-discount, 0)
	return discount, final
}

// ToMinorUnits переводит сумму в основных единицах (100.00) в минимальные (10000).
func ToMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, apperr.InvalidArgument("amount must be a finite number")
	}
	if amount < 0 {
		return 0, apperr.InvalidArgument("amount must not be negative")
	}
	minor := math.Round(amount * 100)
	if minor > math.MaxInt64/2 {
		return 0, apperr.InvalidArgument("amount is too large")
	}
	return int64(minor), nil
}

// FromMinorUnits переводит сумму в основные единицы.
func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
