package mail

import (
	"fmt"
	"mime"
	"net/smtp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/env"
)

// SendMail delivers one HTML email via the configured SMTP relay. Publish
// alerting is the only mail producer, so a single synchronous send is enough;
// callers decide whether delivery failure matters.
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		return fmt.Errorf("SMTP_HOST not configured")
	}
	addr := fmt.Sprintf("%s:%s", host, env.GetEnv("SMTP_PORT", "587"))

	sender := env.GetEnv("SMTP_SENDER", "")
	if sender == "" {
		sender = "scheduler@localhost"
		log.Warnf("[Mail] SMTP_SENDER not set, using %s", sender)
	}

	var auth smtp.Auth
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		sender, to, mime.QEncoding.Encode("utf-8", subject),
	)

	if err := smtp.SendMail(addr, auth, sender, []string{to}, []byte(headers+body)); err != nil {
		log.Errorf("[Mail] Send to %s via %s failed: %v", to, addr, err)
		return err
	}
	log.Infof("[Mail] Sent %q to %s", subject, to)
	return nil
}
