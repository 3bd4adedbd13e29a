package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/config"
)

type EmailResult struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type EmailGateway interface {
	SendEmail(ctx context.Context, to, subject, html string) (EmailResult, error)
}

// NewEmailGateway — SendGrid при наличии ключа, иначе письма только пишутся в лог.
func NewEmailGateway(cfg *config.Config, log *zap.Logger) EmailGateway {
	if cfg.Email.SendGridAPIKey == "" {
		if cfg.IsProd() {
			log.Warn("SENDGRID_API_KEY is empty in prod, emails go to log only")
		}
		return NewConsoleEmail(log)
	}
	return NewSendGridEmail(cfg.Email)
}

type SendGridEmail struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridEmail(cfg config.EmailConfig) *SendGridEmail {
	return &SendGridEmail{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
	}
}

func (s *SendGridEmail) SendEmail(ctx context.Context, to, subject, html string) (EmailResult, error) {
	msg := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), "", html)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return EmailResult{}, fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return EmailResult{}, fmt.Errorf("sendgrid: http %d: %s", resp.StatusCode, resp.Body)
	}
	var id string
	if v := resp.Headers["X-Message-Id"]; len(v) > 0 {
		id = v[0]
	}
	return EmailResult{MessageID: id, Status: "sent"}, nil
}

// ConsoleEmail — для dev: письмо не уходит, а логируется.
type ConsoleEmail struct {
	log *zap.Logger
}

func NewConsoleEmail(log *zap.Logger) *ConsoleEmail {
	return &ConsoleEmail{log: log.Named("email")}
}

func (c *ConsoleEmail) SendEmail(_ context.Context, to, subject, html string) (EmailResult, error) {
	id := "console_" + uuid.NewString()
	c.log.Info("email (console)",
		zap.String("to", to), zap.String("subject", subject),
		zap.String("message_id", id), zap.Int("html_bytes", len(html)))
	return EmailResult{MessageID: id, Status: "logged"}, nil
}
