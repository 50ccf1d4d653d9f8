package models

import "time"

// Статусы обращения. Переход возможен только Pending -> Answered.
const (
	QueryPending  = "Pending"
	QueryAnswered = "Answered"
)

// Query обращение пользователя к администраторам.
type Query struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Question  string    `json:"question"`
	Answer    *string   `json:"answer,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	// Заполняются только в выборках для администратора.
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// QuerySubmitResult итог приёма обращения.
type QuerySubmitResult struct {
	Query        Query
	OverLimit    bool // в скользящем окне уже было не меньше порога обращений
	NewlyFlagged bool // блокировка выставлена этим обращением
}

// Dashboard сводка для панели администратора.
type Dashboard struct {
	TotalQueries    int `json:"total_queries"`
	AnsweredQueries int `json:"answered_queries"`
	PendingQueries  int `json:"pending_queries"`
	FlaggedUsers    int `json:"flagged_users"`
	TotalUsers      int `json:"total_users"`
}
