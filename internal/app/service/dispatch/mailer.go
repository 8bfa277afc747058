package dispatch

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/parsalearn/enrollpay/pkg/config"
)

// Mailer sends the purchase confirmation email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type smtpMailer struct {
	cfg config.MailConfig
}

func NewMailer(cfg *config.Config) Mailer {
	return &smtpMailer{cfg: cfg.Mail}
}

func (m *smtpMailer) Send(_ context.Context, to, subject, body string) error {
	if m.cfg.Host == "" {
		return fmt.Errorf("mail host not configured")
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		m.cfg.From, to, subject, body))

	var auth smtp.Auth
	if m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}
