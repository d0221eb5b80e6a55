// Package billing собирает зависимости сервиса и запускает HTTP-сервер.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-gateway/internal/cache"
	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/jwt"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/mailer"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
	"github.com/magabrotheeeer/billing-gateway/internal/migrations"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/services/auth"
	"github.com/magabrotheeeer/billing-gateway/internal/services/checkout"
	"github.com/magabrotheeeer/billing-gateway/internal/services/coupon"
	"github.com/magabrotheeeer/billing-gateway/internal/services/subscription"
	"github.com/magabrotheeeer/billing-gateway/internal/storage/repository"
)

// Services бизнес-сервисы, которые обслуживает HTTP-слой.
type Services struct {
	Auth         *auth.Service
	Coupons      *coupon.Service
	Checkout     *checkout.Service
	Subscription *subscription.Service
	Provider     *paymentprovider.Client
	JWT          jwt.Maker
	DB           *repository.Storage
}

// App приложение billing-gateway.
type App struct {
	cfg      *config.Config
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	cache    *cache.Cache
	amqpConn *amqp.Connection
	amqpCh   *amqp.Channel
	subs     *subscription.Service
}

// New подключает хранилища, применяет миграции и собирает сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "billing.New"

	if !cfg.Mongo.SkipMigrations {
		dbURL, err := cfg.Mongo.MigrationURL()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(cfg.Mongo.MigrationsPath, dbURL); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("migrations applied", slog.String("path", cfg.Mongo.MigrationsPath))
	}

	db, err := repository.New(ctx, cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := &App{cfg: cfg, logger: logger, db: db}

	// Без Redis купоны проверяются напрямую в базе.
	var couponCache coupon.Cache
	if c, err := cache.New(ctx, cfg.Redis); err != nil {
		logger.Warn("redis unavailable, coupon cache disabled", sl.Err(err))
	} else {
		a.cache = c
		couponCache = c
	}

	var publisher subscription.Publisher
	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			a.closeStores(ctx)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupExchange(conn, cfg.RabbitMQ.Exchange)
		if err != nil {
			_ = conn.Close()
			a.closeStores(ctx)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.amqpConn, a.amqpCh = conn, ch
		publisher = rabbitmq.NewPublisher(ch, cfg.RabbitMQ.Exchange)
	} else {
		logger.Info("rabbitmq url is empty, subscription events are not published")
	}

	provider, err := paymentprovider.NewClient(cfg.Stripe, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	mail, err := mailer.New(cfg.Mail, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)
	coupons := coupon.NewService(db, couponCache, cfg.Coupon.CacheTTL, m, logger)
	subs := subscription.NewService(db, provider, publisher, m, logger, cfg.Subscription)
	a.subs = subs

	svc := Services{
		Auth:         auth.NewService(db, jwtMaker, mail, logger, cfg.Auth),
		Coupons:      coupons,
		Checkout:     checkout.NewService(db, coupons, provider, m, logger, cfg.Stripe.Currency),
		Subscription: subs,
		Provider:     provider,
		JWT:          jwtMaker,
		DB:           db,
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg.HTTPServer, svc)

	a.server = &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	return a, nil
}

// Run запускает сервер и блокируется до отмены ctx или ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Close(context.Background())
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPServer.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.Close(timeoutCtx)
		return err
	}
}

// Close дожидается фоновых обновлений статуса и закрывает соединения.
func (a *App) Close(ctx context.Context) {
	if a.subs != nil {
		a.subs.Wait()
	}
	if a.amqpCh != nil {
		if err := a.amqpCh.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq channel", sl.Err(err))
		}
	}
	if a.amqpConn != nil {
		if err := a.amqpConn.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	a.closeStores(ctx)
}

func (a *App) closeStores(ctx context.Context) {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(ctx); err != nil {
		a.logger.Warn("failed to close mongo", sl.Err(err))
	}
}
