package models

// Типы сообщений очереди уведомлений.
const (
	NotificationMail     = "mail"
	NotificationReminder = "reminder"
)

// Notification сообщение, которое отправитель уведомлений доставляет по почте.
// DedupeKey задаёт идемпотентность доставки: повтор с тем же ключом пропускается.
type Notification struct {
	Type      string `json:"type"`
	DedupeKey string `json:"dedupe_key,omitempty"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"html_body"`
}
