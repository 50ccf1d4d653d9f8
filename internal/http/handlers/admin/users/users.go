// Package users реализует управление учётными записями администратором.
package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/services/admin"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const (
	msgListFailed    = "Error retrieving users"
	msgLoadFailed    = "Error loading user"
	msgResetFailed   = "Error resetting profile picture"
	msgHistoryFailed = "Error retrieving user history"
	msgInvalidInput  = "Invalid form data"

	usersURL      = "/admin/users"
	editURLPrefix = "/admin/users/edit/"
	adminLoginURL = "/admin/login"

	checkboxOn = "on"
)

// EditRequest: форма правки пользователя. Флажки приходят как "on".
type EditRequest struct {
	Name            string `form:"name" json:"name"`
	Username        string `form:"username" json:"username"`
	ProfilePicture  string `form:"profilePicture" json:"profilePicture"`
	IsAdmin         string `form:"isAdmin" json:"isAdmin"`
	Flagged         string `form:"flagged" json:"flagged"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirmPassword" json:"confirmPassword"`
}

func checked(v string) bool {
	return v == checkboxOn || v == "true"
}

// Service описывает управление пользователями.
type Service interface {
	Dashboard(ctx context.Context) (models.Dashboard, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	EditUser(ctx context.Context, actorID, userID string, in admin.EditUserInput) error
	ResetPicture(ctx context.Context, userID string) error
	History(ctx context.Context, userID string) ([]models.UserAudit, error)
}

// Handler обрабатывает страницы управления пользователями.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// Dashboard отдаёт главную страницу администратора со сводкой.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.Dashboard")

	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		log.Error("failed to load dashboard", sl.Err(err))
		session.FromContext(r.Context()).AddFlash(session.FlashError, apperr.Message(err, admin.MsgDashboardError))
	}
	response.RenderPage(w, r, map[string]any{"title": "Admin Dashboard", "stats": stats})
}

// List отдаёт всех пользователей, новые первыми.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.List")

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		session.FromContext(r.Context()).AddFlash(session.FlashError, msgListFailed)
	}
	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	response.RenderPage(w, r, map[string]any{"title": "Manage Users", "users": views})
}

// EditForm отдаёт данные формы правки пользователя.
func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.EditForm")

	u, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.ErrorRedirect(w, r, log, err, msgLoadFailed, usersURL)
		return
	}
	response.RenderPage(w, r, map[string]any{"title": "Edit User", "userToEdit": u.View()})
}

// Edit сохраняет правку пользователя.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.Edit")
	s := session.FromContext(r.Context())
	actorID := s.User().ID
	userID := chi.URLParam(r, "id")
	editURL := editURLPrefix + userID

	var req EditRequest
	if err := render.Decode(r, &req); err != nil {
		response.ErrorRedirect(w, r, log, err, msgInvalidInput, editURL)
		return
	}

	err := h.service.EditUser(r.Context(), actorID, userID, admin.EditUserInput{
		Name:            req.Name,
		Username:        req.Username,
		ProfilePicture:  req.ProfilePicture,
		IsAdmin:         checked(req.IsAdmin),
		Flagged:         checked(req.Flagged),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		response.ErrorRedirect(w, r, log, err, admin.MsgUserUpdateFailed, editURL)
		return
	}

	h.finish(w, r, s, userID, admin.MsgUserUpdated, usersURL)
}

// ResetPicture возвращает пользователю изображение профиля по умолчанию.
func (h *Handler) ResetPicture(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.ResetPicture")
	s := session.FromContext(r.Context())
	userID := chi.URLParam(r, "id")
	editURL := editURLPrefix + userID

	if err := h.service.ResetPicture(r.Context(), userID); err != nil {
		response.ErrorRedirect(w, r, log, err, msgResetFailed, editURL)
		return
	}
	h.finish(w, r, s, userID, admin.MsgPictureReset, editURL)
}

// History отдаёт журнал изменений статуса пользователя.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.History")
	userID := chi.URLParam(r, "id")

	entries, err := h.service.History(r.Context(), userID)
	if err != nil {
		response.ErrorRedirect(w, r, log, err, msgHistoryFailed, usersURL)
		return
	}
	response.RenderPage(w, r, map[string]any{"title": "User History", "userId": userID, "history": entries})
}

// finish завершает успешную правку. Сессии изменённого пользователя уже
// удалены, поэтому при правке самого себя администратор входит заново.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, s *session.Session, userID, msg, url string) {
	s.AddFlash(session.FlashSuccess, msg)
	if userID == s.User().ID {
		s.ClearUser()
		url = adminLoginURL
	}
	response.Redirect(w, r, url)
}
