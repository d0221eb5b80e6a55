// Package metrics содержит счётчики Prometheus сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics счётчики платёжного контура.
type Metrics struct {
	WebhookEvents           *prometheus.CounterVec
	CheckoutSessions        *prometheus.CounterVec
	SubscriptionTransitions *prometheus.CounterVec
	CouponValidations       *prometheus.CounterVec
}

// New регистрирует счётчики в reg. nil означает регистр по умолчанию.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "webhook_events_total",
			Help:      "Webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		CheckoutSessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "checkout_sessions_total",
			Help:      "Checkout session attempts by outcome.",
		}, []string{"outcome"}),
		SubscriptionTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "subscription_transitions_total",
			Help:      "Subscription state transitions by target state and source.",
		}, []string{"to", "source"}),
		CouponValidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "coupon_validations_total",
			Help:      "Coupon validations by result.",
		}, []string{"result"}),
	}
}

// NewNoop возвращает счётчики в отдельном регистре, для тестов.
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}
