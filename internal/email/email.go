package email

import (
	"fmt"
	"net/smtp"

	"licensedesk.app/server/internal/config"
)

// Send delivers a plain-text message through the configured SMTP relay.
// Callers treat delivery as best-effort; a failed notification never fails
// the operation that triggered it.
func Send(cfg *config.Config, to, subject, body string) error {
	if !cfg.EmailEnabled() {
		return fmt.Errorf("SMTP configuration missing")
	}

	auth := smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", cfg.EmailFrom, to, subject, body))

	addr := fmt.Sprintf("%s:%s", cfg.SMTPHost, cfg.SMTPPort)
	return smtp.SendMail(addr, auth, cfg.SMTPUsername, []string{to}, msg)
}
