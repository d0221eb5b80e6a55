// Package config предоставляет структуры и функции для загрузки конфигурации.
//
// Настройки читаются из YAML-файла (CONFIG_PATH), секреты переопределяются
// переменными окружения; перед чтением подгружается .env, если он есть.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// ErrMissingSecret возвращается Validate, если не задан обязательный секрет.
var ErrMissingSecret = errors.New("config: required secret is not set")

// Режимы сохранения истечения подписки при чтении статуса.
const (
	ExpiryReconcileSync  = "sync"
	ExpiryReconcileAsync = "async"
	ExpiryReconcileOff   = "off"
)

// Config общая структура для хранения настроек
type Config struct {
	Env          string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer   HTTPServer      `yaml:"http_server"`
	Mongo        Mongo           `yaml:"mongo"`
	Redis        RedisConnection `yaml:"redis_connection"`
	RabbitMQ     RabbitMQ        `yaml:"rabbitmq"`
	JWTToken     JWTToken        `yaml:"jwttoken"`
	Stripe       Stripe          `yaml:"stripe"`
	Mail         Mail            `yaml:"mail"`
	Subscription Subscription    `yaml:"subscription"`
	Coupon       Coupon          `yaml:"coupon"`
	Auth         Auth            `yaml:"auth"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP     string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP     time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env-default:"5"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env-default:"10"`
}

// Mongo структура для настройки подключения к MongoDB
type Mongo struct {
	URI            string        `yaml:"uri" env:"MONGODB_URI" env-default:"mongodb://localhost:27017"`
	Database       string        `yaml:"database" env:"MONGODB_DATABASE" env-default:"billing"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env-default:"10s"`
	MaxPoolSize    uint64        `yaml:"max_pool_size" env-default:"100"`
	RetryAttempts  int           `yaml:"retry_attempts" env-default:"3"`
	RetryInterval  time.Duration `yaml:"retry_interval" env-default:"2s"`
	MigrationsPath string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	SkipMigrations bool          `yaml:"skip_migrations" env:"SKIP_MIGRATIONS"`
}

// MigrationURL возвращает URI с именем базы в пути, как того требует golang-migrate.
func (m Mongo) MigrationURL() (string, error) {
	u, err := url.Parse(m.URI)
	if err != nil {
		return "", fmt.Errorf("config.MigrationURL: %w", err)
	}
	u.Path = "/" + m.Database
	return u.String(), nil
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ настройки публикации событий подписок. Пустой URL отключает публикацию.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	Exchange   string        `yaml:"exchange" env-default:"billing"`
	Retries    int           `yaml:"retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Stripe настройки платёжного провайдера.
type Stripe struct {
	SecretKey         string        `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret     string        `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	APIURL            string        `yaml:"api_url" env:"STRIPE_API_URL"`
	SuccessURL        string        `yaml:"success_url" env:"STRIPE_SUCCESS_URL" env-default:"http://localhost:3000/payment/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL         string        `yaml:"cancel_url" env:"STRIPE_CANCEL_URL" env-default:"http://localhost:3000/payment/cancel"`
	ProductName       string        `yaml:"product_name" env-default:"Annual subscription"`
	Currency          string        `yaml:"currency" env-default:"usd"`
	MaxNetworkRetries int64         `yaml:"max_network_retries" env-default:"2"`
	Timeout           time.Duration `yaml:"timeout" env-default:"15s"`
	WebhookTolerance  time.Duration `yaml:"webhook_tolerance" env-default:"5m"`
	BreakerFailures   uint32        `yaml:"breaker_failures" env-default:"5"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout" env-default:"30s"`
}

// Mail настройки отправки писем. Driver: postmark, smtp или log.
type Mail struct {
	Driver               string `yaml:"driver" env:"MAIL_DRIVER" env-default:"log"`
	From                 string `yaml:"from" env:"MAIL_FROM" env-default:"no-reply@example.com"`
	PostmarkServerToken  string `yaml:"postmark_server_token" env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `yaml:"postmark_account_token" env:"POSTMARK_ACCOUNT_TOKEN"`
	SMTPHost             string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort             string `yaml:"smtp_port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser             string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPass             string `yaml:"smtp_pass" env:"SMTP_PASS"`
}

// Subscription настройки модели подписки.
type Subscription struct {
	PeriodYears      int           `yaml:"period_years" env-default:"1"`
	ExpiryReconcile  string        `yaml:"expiry_reconcile" env:"EXPIRY_RECONCILE" env-default:"async"`
	ReconcileTimeout time.Duration `yaml:"reconcile_timeout" env-default:"5s"`
}

// Coupon настройки кеша купонов.
type Coupon struct {
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"10m"`
}

// Auth настройки аутентификации.
type Auth struct {
	AdminEmails   []string      `yaml:"admin_emails" env:"ADMIN_EMAILS" env-separator:","`
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl" env-default:"1h"`
	ResetURL      string        `yaml:"reset_url" env:"RESET_URL" env-default:"http://localhost:3000/reset-password"`
}

// Load читает конфиг из файла path, переопределяя значения переменными окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает .env и конфиг из CONFIG_PATH, завершая процесс при ошибке.
func MustLoad() *Config {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Validate проверяет наличие секретов, без которых сервис не может стартовать.
func (c *Config) Validate() error {
	var missing []string
	if c.JWTToken.JWTSecretKey == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(missing, ", "))
	}

	switch c.Subscription.ExpiryReconcile {
	case ExpiryReconcileSync, ExpiryReconcileAsync, ExpiryReconcileOff:
	default:
		return fmt.Errorf("config: unknown expiry_reconcile mode %q", c.Subscription.ExpiryReconcile)
	}
	return nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"HTTPServer: %s (timeout %s, idle %s)\n"+
			"Mongo: %s/%s\n"+
			"Redis: %s db=%d password=%s\n"+
			"RabbitMQ: %s exchange=%s\n"+
			"Stripe: secret=%s webhook_secret=%s currency=%s\n"+
			"Mail: %s from=%s\n"+
			"Subscription: period=%dy reconcile=%s\n"+
			"JWT: secret=%s ttl=%s\n",
		c.Env,
		c.HTTPServer.AddressHTTP, c.HTTPServer.TimeoutHTTP, c.HTTPServer.IdleTimeout,
		c.Mongo.URI, c.Mongo.Database,
		c.Redis.AddressRedis, c.Redis.DB, redact(c.Redis.Password),
		c.RabbitMQ.URL, c.RabbitMQ.Exchange,
		redact(c.Stripe.SecretKey), redact(c.Stripe.WebhookSecret), c.Stripe.Currency,
		c.Mail.Driver, c.Mail.From,
		c.Subscription.PeriodYears, c.Subscription.ExpiryReconcile,
		redact(c.JWTToken.JWTSecretKey), c.JWTToken.TokenTTL,
	)
}
