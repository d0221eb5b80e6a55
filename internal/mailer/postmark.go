package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/magabrotheeeer/billing-gateway/internal/config"
)

type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// PostmarkSender отправляет письма через Postmark.
type PostmarkSender struct {
	client postmarkAPI
	from   string
}

// NewPostmarkSender создаёт отправителя Postmark.
func NewPostmarkSender(cfg config.Mail) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}
	return &PostmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:   cfg.From,
	}, nil
}

// Send отправляет письмо.
func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	const op = "mailer.PostmarkSender.Send"
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       msg.To,
		Subject:  msg.Subject,
		Tag:      msg.Tag,
		HTMLBody: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrFailedToSend, err))
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrFailedToSend,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)))
	}
	return nil
}
