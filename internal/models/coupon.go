package models

import "time"

// DiscountCode скидочный код.
type DiscountCode struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Discount    float64    `json:"discount"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	UsedBy      string     `json:"used_by,omitempty"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CodeInput данные для создания кода.
type CodeInput struct {
	Code        string  `json:"code" validate:"required,max=64"`
	Discount    float64 `json:"discount" validate:"gte=0,lte=100"`
	Description string  `json:"description,omitempty" validate:"max=512"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// CodePatch частичное обновление кода, nil-поля не меняются.
type CodePatch struct {
	Code        *string  `json:"code,omitempty" validate:"omitempty,min=1,max=64"`
	Discount    *float64 `json:"discount,omitempty" validate:"omitempty,gte=0,lte=100"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=512"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

// Empty сообщает, что патч ничего не меняет.
func (p CodePatch) Empty() bool {
	return p.Code == nil && p.Discount == nil && p.Description == nil && p.IsActive == nil
}

// CouponValidation результат успешной проверки купона.
type CouponValidation struct {
	Code            string  `json:"code"`
	DiscountPercent float64 `json:"discount_percent"`
	Description     string  `json:"description,omitempty"`
}

// BulkCodeResult результат создания одного кода в пакетной операции.
type BulkCodeResult struct {
	Code   string        `json:"code"`
	Item   *DiscountCode `json:"item,omitempty"`
	Error  string        `json:"error,omitempty"`
	Reason string        `json:"reason,omitempty"`
}
