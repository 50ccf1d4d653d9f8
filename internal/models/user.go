// Package models содержит доменные структуры сервиса: пользователей,
// обращения к администраторам, напоминания и сообщения для очереди уведомлений.
package models

import "time"

// DefaultProfilePicture путь к изображению профиля по умолчанию.
const DefaultProfilePicture = "/img/defaultUser.jpg"

// User представляет зарегистрированного пользователя системы.
// Пользователь с Flagged=true не может войти даже с верным паролем.
type User struct {
	ID               string     // Уникальный идентификатор пользователя
	Name             string     // Отображаемое имя
	Username         string     // Имя пользователя (уникальное)
	Email            string     // Электронная почта (уникальная)
	PasswordHash     string     // Хэш пароля пользователя
	IsAdmin          bool       // Признак администратора
	Flagged          bool       // Пользователь заблокирован
	ProfilePicture   string     // Путь к изображению профиля
	ResetTokenHash   *string    // SHA-256 токена сброса пароля
	ResetTokenExpiry *time.Time // Срок действия токена сброса
	DateJoined       time.Time  // Дата регистрации
}

// UserAudit запись журнала изменений статуса пользователя.
type UserAudit struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ActorID   *string   `json:"actor_id"` // nil для автоматических действий
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Действия журнала пользователя.
const (
	AuditAutoFlag  = "auto_flag"
	AuditSuspend   = "suspend"
	AuditUnsuspend = "unsuspend"
	AuditAdminEdit = "admin_edit"
)

// UserUpdate поля, которые администратор может перезаписать.
// PasswordHash == nil означает, что пароль не меняется.
type UserUpdate struct {
	Name           string
	Username       string
	ProfilePicture string
	IsAdmin        bool
	Flagged        bool
	PasswordHash   *string
}

// UserView публичное представление пользователя для ответов API.
type UserView struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	IsAdmin        bool      `json:"is_admin"`
	Flagged        bool      `json:"flagged"`
	ProfilePicture string    `json:"profile_picture"`
	DateJoined     time.Time `json:"date_joined"`
}

// View возвращает представление пользователя без секретных полей.
func (u *User) View() UserView {
	return UserView{
		ID:             u.ID,
		Name:           u.Name,
		Username:       u.Username,
		Email:          u.Email,
		IsAdmin:        u.IsAdmin,
		Flagged:        u.Flagged,
		ProfilePicture: u.ProfilePicture,
		DateJoined:     u.DateJoined,
	}
}
