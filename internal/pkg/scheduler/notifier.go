package scheduler

import (
	"fmt"
	"html"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
	"github.com/rr7r44795y-lgtm/crosspost/app/repository"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/env"
	"github.com/rr7r44795y-lgtm/crosspost/internal/pkg/mail"
)

// Notifier delivers human-directed alerts when automatic publication is
// exhausted. Implementations are fire-and-forget; delivery failures must never
// propagate into the publish pipeline.
type Notifier interface {
	SendFallbackAlert(userID uint, record *models.ScheduleRecord, publishErr error)
	SendAdminAlert(subject, message string)
}

// MailNotifier sends alerts via SMTP.
type MailNotifier struct {
	users repository.UserRepository
}

func NewMailNotifier(users repository.UserRepository) *MailNotifier {
	return &MailNotifier{users: users}
}

// SendFallbackAlert mails the owning user enough context for a manual publish:
// schedule id, platform, the error, and the rendered asset link if present.
func (n *MailNotifier) SendFallbackAlert(userID uint, record *models.ScheduleRecord, publishErr error) {
	user, err := n.users.GetByID(userID)
	if err != nil {
		log.Errorf("[Notifier] Cannot resolve user %d for fallback alert: %v", userID, err)
		return
	}

	subject := fmt.Sprintf("Scheduled post to %s could not be published", record.Platform)
	body := fmt.Sprintf(
		"<p>Your post scheduled for %s on <strong>%s</strong> could not be published automatically.</p>"+
			"<p>Schedule: %s<br>Error: %s</p>",
		record.ScheduledTime.Format("2006-01-02 15:04 MST"),
		record.Platform,
		record.UUID,
		html.EscapeString(errText(publishErr)),
	)
	if record.AssetURL != "" {
		body += fmt.Sprintf(`<p>Rendered asset for manual publishing: <a href="%s">%s</a></p>`, record.AssetURL, record.AssetURL)
	}
	body += "<p>Please publish manually or adjust the schedule.</p>"

	if err := mail.SendMail(user.Email, subject, body); err != nil {
		log.Errorf("[Notifier] Fallback alert for schedule %s failed: %v", record.UUID, err)
	}
}

// SendAdminAlert mails the operations address configured via ADMIN_EMAIL.
func (n *MailNotifier) SendAdminAlert(subject, message string) {
	to := env.GetEnv("ADMIN_EMAIL", "")
	if to == "" {
		log.Warnf("[Notifier] ADMIN_EMAIL not set, dropping admin alert: %s", subject)
		return
	}
	if err := mail.SendMail(to, subject, "<p>"+html.EscapeString(message)+"</p>"); err != nil {
		log.Errorf("[Notifier] Admin alert failed: %v", err)
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
