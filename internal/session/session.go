// Package session хранит пользовательские сессии в Redis.
//
// Идентификатор сессии передаётся в cookie как подписанный JWT (jti = id).
// Cookie выдаётся сразу, а сама сессия записывается в Redis только после изменений.
// Снимок пользователя кешируется на время жизни сессии; при блокировке или
// правке пользователя все его сессии удаляются через Manager.InvalidateUser.
package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ewaste-hub/internal/models"
)

// Виды flash-уведомлений.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// User снимок публичных полей пользователя, сохранённый при входе.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profile_picture"`
	IsAdmin        bool   `json:"is_admin"`
}

// Snapshot строит снимок для сессии из записи пользователя.
func Snapshot(u *models.User) User {
	return User{
		ID:             u.ID,
		Name:           u.Name,
		Username:       u.Username,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
		IsAdmin:        u.IsAdmin,
	}
}

// Flash одноразовое уведомление для следующего показа страницы.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RegisterData введённые при регистрации поля для повторного показа формы.
type RegisterData struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type data struct {
	User         *User         `json:"user,omitempty"`
	Flashes      []Flash       `json:"flashes,omitempty"`
	RegisterData *RegisterData `json:"register_data,omitempty"`
}

// Session состояние сессии одного запроса.
type Session struct {
	id        string
	prevID    string
	data      data
	isNew     bool
	dirty     bool
	destroyed bool
}

func newSession() *Session {
	return &Session{id: uuid.NewString(), isNew: true}
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string {
	return s.id
}

// User возвращает снимок пользователя или nil для анонимной сессии.
func (s *Session) User() *User {
	return s.data.User
}

// Login привязывает пользователя к сессии и выдаёт ей новый идентификатор.
func (s *Session) Login(u User) {
	if !s.isNew {
		s.prevID = s.id
	}
	s.id = uuid.NewString()
	s.isNew = true
	s.data.User = &u
	s.data.RegisterData = nil
	s.dirty = true
}

// UpdateUser обновляет снимок пользователя без смены идентификатора.
func (s *Session) UpdateUser(u User) {
	s.data.User = &u
	s.dirty = true
}

// ClearUser отвязывает пользователя, сохраняя сессию для flash-уведомлений.
func (s *Session) ClearUser() {
	if s.data.User == nil {
		return
	}
	s.data.User = nil
	s.dirty = true
}

// Destroy удаляет сессию целиком.
func (s *Session) Destroy() {
	s.destroyed = true
}

// AddFlash ставит уведомление в очередь.
func (s *Session) AddFlash(kind, message string) {
	s.data.Flashes = append(s.data.Flashes, Flash{Kind: kind, Message: message})
	s.dirty = true
}

// PopFlashes забирает все уведомления из очереди.
func (s *Session) PopFlashes() []Flash {
	flashes := s.data.Flashes
	if len(flashes) == 0 {
		return []Flash{}
	}
	s.data.Flashes = nil
	s.dirty = true
	return flashes
}

// SetRegisterData сохраняет поля неудачной регистрации.
func (s *Session) SetRegisterData(rd RegisterData) {
	s.data.RegisterData = &rd
	s.dirty = true
}

// PopRegisterData забирает сохранённые поля регистрации.
func (s *Session) PopRegisterData() *RegisterData {
	rd := s.data.RegisterData
	if rd != nil {
		s.data.RegisterData = nil
		s.dirty = true
	}
	return rd
}

type ctxKey struct{}

// WithSession кладёт сессию в контекст.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext возвращает сессию запроса или nil, если middleware не подключён.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// NewSession создаёт новую сессию с пользователем u; nil означает анонима.
func NewSession(u *User) *Session {
	s := newSession()
	s.data.User = u
	return s
}
