package models

import "time"

// Reminder напоминание пользователя. FiredAt == nil означает, что
// напоминание запланировано и ещё не отправлено.
type Reminder struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Message   string     `json:"message"`
	Datetime  time.Time  `json:"datetime"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DueReminder напоминание, захваченное планировщиком для отправки.
type DueReminder struct {
	ID       string
	UserID   string
	Email    string
	Username string
	Message  string
	Datetime time.Time
	FiredAt  time.Time
}
