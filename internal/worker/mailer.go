package worker

import (
	"errors"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/ouse-live/backend/config"
)

// ErrMailerDisabled is returned when no SMTP host is configured.
var ErrMailerDisabled = errors.New("smtp not configured")

// SMTPMailer sends plain-text mail through a configured SMTP relay.
type SMTPMailer struct {
	cfg    config.EmailConfig
	logger *zap.Logger
}

// NewSMTPMailer creates a mailer from the email configuration.
func NewSMTPMailer(cfg config.EmailConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// Enabled reports whether an SMTP host has been configured.
func (m *SMTPMailer) Enabled() bool {
	return m.cfg.SMTPHost != ""
}

// Send delivers one message. Without an SMTP host it returns
// ErrMailerDisabled so the caller can record the skip.
func (m *SMTPMailer) Send(to, toName, subject, body string) error {
	if !m.Enabled() {
		return ErrMailerDisabled
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	from := m.cfg.FromAddress

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		m.cfg.FromName, from, to, subject, body)

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	m.logger.Debug("smtp delivery ok", zap.String("to", to))
	return nil
}
