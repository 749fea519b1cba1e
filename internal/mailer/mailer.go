/**
 * @description
 * SMTP mailer for account verification emails.
 * Without SMTP configuration the verification link is logged instead of sent,
 * which keeps local development working with no mail server.
 *
 * @dependencies
 * - net/smtp
 * - backend/internal/config
 */

package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/papertrade-project/backend/internal/config"
	"github.com/papertrade-project/backend/internal/logger"
)

type Mailer struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// SendVerificationEmail mails the signed verification link to a new user
func (m *Mailer) SendVerificationEmail(toEmail, username, token string) error {
	link := fmt.Sprintf("%s/verify/%s", m.cfg.Mail.FrontendURL, token)

	if m.cfg.Mail.SMTPHost == "" {
		logger.Info("SMTP not configured; verification link for %s: %s", username, link)
		return nil
	}

	subject := "Verify your email"
	body := fmt.Sprintf("Hey %s,\n\nPlease verify your email by clicking the link below:\n%s\n", username, link)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.cfg.Mail.From, toEmail, subject, body))

	addr := m.cfg.Mail.SMTPHost + ":" + m.cfg.Mail.SMTPPort
	auth := smtp.PlainAuth("", m.cfg.Mail.From, m.cfg.Mail.Password, m.cfg.Mail.SMTPHost)

	return smtp.SendMail(addr, auth, m.cfg.Mail.From, []string{toEmail}, msg)
}
