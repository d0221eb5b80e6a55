package billing

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/auth/forgotpassword"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/auth/resetpassword"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/auth/signup"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/codes/bulk"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/codes/create"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/codes/list"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/codes/read"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/codes/remove"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/codes/update"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/coupon/validate"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/health"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/payment/checkout"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/payment/status"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/payment/verify"
	"github.com/magabrotheeeer/billing-gateway/internal/http/handlers/payment/webhook"
	"github.com/magabrotheeeer/billing-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, httpCfg config.HTTPServer, svc Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)

	limiter := middlewarectx.NewRateLimiter(httpCfg.RateLimitRPS, httpCfg.RateLimitBurst)
	jwtAuth := middlewarectx.JWTMiddleware(svc.JWT, logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки с ограничением частоты
		r.Route("/auth", func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))
			r.Post("/signup", signup.New(logger, svc.Auth).ServeHTTP)
			r.Post("/login", login.New(logger, svc.Auth).ServeHTTP)
			r.Post("/forgot-password", forgotpassword.New(logger, svc.Auth).ServeHTTP)
			r.Post("/reset-password", resetpassword.New(logger, svc.Auth).ServeHTTP)
		})

		r.Post("/coupon/validate", validate.New(logger, svc.Coupons).ServeHTTP)

		// Webhook без аутентификации, подпись проверяется в обработчике
		r.Post("/payment/webhook", webhook.New(logger, svc.Provider, svc.Subscription).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth)
			r.Post("/payment/create-checkout-session", checkout.New(logger, svc.Checkout).ServeHTTP)
			r.Get("/payment/status/{userId}", status.New(logger, svc.Subscription).ServeHTTP)
			r.Post("/payment/verify-session", verify.New(logger, svc.Subscription).ServeHTTP)
		})

		// Управление кодами только для admin
		r.Route("/codes", func(r chi.Router) {
			r.Use(jwtAuth, middlewarectx.RequireRole(models.RoleAdmin, logger))
			r.Get("/", list.New(logger, svc.Coupons).ServeHTTP)
			r.Post("/", create.New(logger, svc.Coupons).ServeHTTP)
			r.Post("/bulk", bulk.New(logger, svc.Coupons).ServeHTTP)
			r.Get("/{id}", read.New(logger, svc.Coupons).ServeHTTP)
			r.Put("/{id}", update.New(logger, svc.Coupons).ServeHTTP)
			r.Delete("/{id}", remove.New(logger, svc.Coupons).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, svc.DB).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
