package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/diarisk/health-api/internal/config"
)

type Service interface {
	SendVerification(ctx context.Context, to string, link string) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewService(cfg config.SMTPConfig, password string) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendVerification(_ context.Context, to string, link string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Verify your account")
	m.SetBody("text/html", fmt.Sprintf(
		`<p>Welcome. Please confirm your email address by following <a href=%q>this link</a>.</p>`, link))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// Noop discards outgoing mail; used when SMTP is not configured.
type Noop struct{}

func (Noop) SendVerification(context.Context, string, string) error { return nil }
