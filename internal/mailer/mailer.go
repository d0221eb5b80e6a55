// Package mailer отправляет транзакционные письма (сброс пароля).
//
// Поддерживаются три драйвера: postmark, smtp и log. Драйвер log только пишет
// письмо в журнал и используется локально.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
)

var (
	// ErrInvalidConfig неверные настройки драйвера.
	ErrInvalidConfig = errors.New("mailer: invalid config")
	// ErrInvalidMessage письмо без адресата или темы.
	ErrInvalidMessage = errors.New("mailer: invalid message")
	// ErrFailedToSend провайдер отклонил письмо.
	ErrFailedToSend = errors.New("mailer: failed to send email")
)

// Драйверы отправки.
const (
	DriverPostmark = "postmark"
	DriverSMTP     = "smtp"
	DriverLog      = "log"
)

// Message письмо.
type Message struct {
	To      string
	Subject string
	HTML    string
	Tag     string
}

// Validate проверяет обязательные поля.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	return nil
}

// Sender отправляет письма.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New создаёт отправителя по настройкам.
func New(cfg config.Mail, log *slog.Logger) (Sender, error) {
	const op = "mailer.New"

	var (
		s   Sender
		err error
	)
	switch cfg.Driver {
	case DriverPostmark:
		s, err = NewPostmarkSender(cfg)
	case DriverSMTP:
		s, err = NewSMTPSender(NewTransport(cfg, log), cfg.From, log)
	case DriverLog, "":
		s = NewLogSender(log)
	default:
		err = fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// LogSender пишет письма в журнал вместо отправки.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender создаёт LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send пишет письмо в журнал.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.log.Info("email (log driver)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("tag", msg.Tag),
		slog.String("html", msg.HTML),
	)
	return nil
}
