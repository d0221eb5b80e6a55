// Package models содержит доменные структуры сервиса: пользователя с данными
// подписки, скидочные коды и намерение оплаты, хранимое в метаданных провайдера.
package models

import "time"

// Роли пользователя.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// SubscriptionStatus состояние подписки пользователя.
type SubscriptionStatus string

const (
	SubscriptionNone    SubscriptionStatus = "none"
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Valid сообщает, известно ли значение статуса.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionNone, SubscriptionActive, SubscriptionExpired:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Subscription SubscriptionRecord `json:"subscription"`
}

// IsAdmin сообщает, есть ли у пользователя роль администратора.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// SubscriptionRecord часть пользователя, которой владеет машина состояний подписки.
type SubscriptionRecord struct {
	PaymentStatus      bool               `json:"payment_status"`
	PaymentDate        *time.Time         `json:"payment_date,omitempty"`
	Status             SubscriptionStatus `json:"subscription_status"`
	ExpiryDate         *time.Time         `json:"subscription_expiry_date,omitempty"`
	StripeCustomerID   string             `json:"-"`
	LastPaymentRef     string             `json:"-"`
	AppliedPaymentRefs []string           `json:"-"`
}

// Entitlement результат вычисления доступа на момент At.
type Entitlement struct {
	Active      bool               `json:"active"`
	Status      SubscriptionStatus `json:"subscription_status"`
	ExpiryDate  *time.Time         `json:"subscription_expiry_date,omitempty"`
	PaymentDate *time.Time         `json:"payment_date,omitempty"`
	At          time.Time          `json:"evaluated_at"`
	// NeedsExpire выставляется, когда сохранённый статус active устарел.
	NeedsExpire bool `json:"-"`
}
