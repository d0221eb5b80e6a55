// Package auth содержит регистрацию, вход и сброс пароля пользователей.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/jwt"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/password"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/mailer"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

var (
	// ErrEmailTaken пользователь с таким email уже зарегистрирован.
	ErrEmailTaken = apperr.Conflict("user with this email already exists")
	// ErrInvalidCredentials неверный email или пароль.
	ErrInvalidCredentials = apperr.Unauthenticated("invalid email or password")
	// ErrInvalidResetToken токен сброса не найден, истёк или уже использован.
	ErrInvalidResetToken = apperr.InvalidArgument("invalid or expired reset token")
)

// UserRepository описывает контракт хранилища учётных данных.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (string, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	// ConsumeResetToken меняет пароль по действующему токену и гасит токен.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error)
}

// Session результат входа: токен доступа и пользователь.
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Service отвечает за регистрацию, вход и сброс пароля.
type Service struct {
	users    UserRepository
	jwtMaker jwt.Maker
	mail     mailer.Sender
	log      *slog.Logger
	cfg      config.Auth
	now      func() time.Time
	newToken func() (token, hash string)
}

// NewService создает новый экземпляр Service.
func NewService(users UserRepository, jwtMaker jwt.Maker, mail mailer.Sender, log *slog.Logger, cfg config.Auth) *Service {
	return &Service{
		users:    users,
		jwtMaker: jwtMaker,
		mail:     mail,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
		newToken: password.NewResetToken,
	}
}

// Signup создает пользователя и сразу выдаёт токен доступа.
// Роль admin получают адреса из списка auth.admin_emails.
func (s *Service) Signup(ctx context.Context, email, name, rawPassword string) (Session, error) {
	const op = "auth.Signup"

	email = normalizeEmail(email)
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hashed,
		Role:         s.roleFor(email),
	}
	id, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}
	user.ID = id
	user.Subscription.Status = models.SubscriptionNone

	token, err := s.jwtMaker.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user signed up", slog.String("op", op), slog.String("user_id", id), slog.String("role", user.Role))
	return Session{Token: token, User: &user}, nil
}

// Login проверяет пароль и выдаёт токен доступа.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (Session, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := s.jwtMaker.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}
	return Session{Token: token, User: user}, nil
}

// ForgotPassword выпускает токен сброса и отправляет письмо со ссылкой.
// Для неизвестного email ничего не делает и не сообщает об этом клиенту.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"
	log := s.log.With(slog.String("op", op))

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	token, hash := s.newToken()
	expiresAt := s.now().UTC().Add(s.cfg.ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	body, err := renderResetEmail(s.resetLink(token), s.cfg.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := mailer.Message{
		To:      user.Email,
		Subject: "Reset your password",
		HTML:    body,
		Tag:     "password-reset",
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		log.Error("failed to send reset email", slog.String("user_id", user.ID), sl.Err(err))
		return nil
	}

	log.Info("reset email sent", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword устанавливает новый пароль по токену из письма. Токен одноразовый.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "auth.ResetPassword"

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.ConsumeResetToken(ctx, password.HashResetToken(token), hashed, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("password reset", slog.String("op", op), slog.String("user_id", user.ID))
	return nil
}

func (s *Service) roleFor(email string) string {
	if slices.ContainsFunc(s.cfg.AdminEmails, func(a string) bool { return normalizeEmail(a) == email }) {
		return models.RoleAdmin
	}
	return models.RoleUser
}

func (s *Service) resetLink(token string) string {
	u, err := url.Parse(s.cfg.ResetURL)
	if err != nil || s.cfg.ResetURL == "" {
		return s.cfg.ResetURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var resetEmail = template.Must(template.New("reset").Parse(
	`<p>We received a request to reset your password.</p>` +
		`<p><a href="{{.Link}}">Reset password</a></p>` +
		`<p>The link is valid for {{.TTL}} and can be used once. ` +
		`If you did not request a reset, ignore this email.</p>`))

func renderResetEmail(link string, ttl time.Duration) (string, error) {
	var buf bytes.Buffer
	err := resetEmail.Execute(&buf, struct {
		Link string
		TTL  string
	}{Link: link, TTL: ttl.String()})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
