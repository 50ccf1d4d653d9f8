package rabbitmq

// Exchange имя direct-exchange для уведомлений.
const Exchange = "notifications"

// Ключи маршрутизации.
const (
	RoutingMail     = "mail"
	RoutingReminder = "reminder"
)

const prefetch = 10

// QueueConfig очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди, которые читает отправитель уведомлений.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notifications.mail", RoutingKey: RoutingMail},
		{QueueName: "notifications.reminder", RoutingKey: RoutingReminder},
	}
}
