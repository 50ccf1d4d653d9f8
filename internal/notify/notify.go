// Package notify ставит письма и напоминания в очередь уведомлений.
// Доставкой по SMTP занимается отдельный процесс notification-sender.
package notify

import (
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
)

// Publisher публикует сообщение в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, message any) error
}

// Notifier публикует уведомления.
type Notifier struct {
	pub Publisher
}

// New создаёт Notifier.
func New(pub Publisher) *Notifier {
	return &Notifier{pub: pub}
}

// SendMail ставит письмо в очередь. Возврат из метода не означает доставку.
func (n *Notifier) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	id := uuid.NewString()
	msg := models.Notification{
		Type:      models.NotificationMail,
		DedupeKey: "mail:" + id,
		To:        to,
		Subject:   subject,
		HTMLBody:  htmlBody,
	}
	if err := n.pub.Publish(ctx, rabbitmq.RoutingMail, id, msg); err != nil {
		return fmt.Errorf("notify.SendMail: %w", err)
	}
	return nil
}

// ReminderMessageID ключ идемпотентности срабатывания: id напоминания и время захвата.
func ReminderMessageID(r models.DueReminder) string {
	return r.ID + ":" + strconv.FormatInt(r.FiredAt.UnixMicro(), 10)
}

// PublishReminder ставит в очередь письмо о наступившем напоминании.
func (n *Notifier) PublishReminder(ctx context.Context, r models.DueReminder) error {
	id := ReminderMessageID(r)
	msg := models.Notification{
		Type:      models.NotificationReminder,
		DedupeKey: "reminder:" + id,
		To:        r.Email,
		Subject:   "Reminder from E-Waste Hub",
		HTMLBody:  reminderBody(r),
	}
	if err := n.pub.Publish(ctx, rabbitmq.RoutingReminder, id, msg); err != nil {
		return fmt.Errorf("notify.PublishReminder: %w", err)
	}
	return nil
}

func reminderBody(r models.DueReminder) string {
	var b strings.Builder
	b.WriteString("<p>Hello ")
	b.WriteString(template.HTMLEscapeString(r.Username))
	b.WriteString(",</p><p>This is your reminder scheduled for ")
	b.WriteString(r.Datetime.UTC().Format("2006-01-02 15:04 MST"))
	b.WriteString(":</p><p>")
	b.WriteString(template.HTMLEscapeString(r.Message))
	b.WriteString("</p>")
	return b.String()
}

// ResetPasswordBody письмо со ссылкой сброса пароля.
func ResetPasswordBody(link string) string {
	escaped := template.HTMLEscapeString(link)
	return "<p>You requested a password reset.</p>" +
		"<p>Click <a href=\"" + escaped + "\">here</a> to reset your password. " +
		"The link is valid for one hour.</p>" +
		"<p>If you did not request this, ignore this email.</p>"
}
