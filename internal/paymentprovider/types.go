package paymentprovider

import "time"

// Типы событий вебхука, которые обрабатывает сервис.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
)

// PaymentStatusPaid статус оплаченной сессии.
const PaymentStatusPaid = "paid"

// Session сессия оплаты на стороне провайдера.
type Session struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	CustomerID      string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
	Created         time.Time
}

// Paid сообщает, что провайдер подтвердил оплату сессии.
func (s Session) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// PaymentIntent платёж на стороне провайдера.
type PaymentIntent struct {
	ID         string
	Status     string
	CustomerID string
	Amount     int64
	Currency   string
	Metadata   map[string]string
	Created    time.Time
}

// CustomerParams данные для создания клиента провайдера.
type CustomerParams struct {
	UserID string
	Email  string
	Name   string
}

// CheckoutParams параметры сессии оплаты. Сумма в минимальных единицах валюты.
type CheckoutParams struct {
	CustomerID     string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Event проверенное событие вебхука. Заполнено одно из Session/PaymentIntent
// в зависимости от Type.
type Event struct {
	ID            string
	Type          string
	Created       time.Time
	Session       *Session
	PaymentIntent *PaymentIntent
}
