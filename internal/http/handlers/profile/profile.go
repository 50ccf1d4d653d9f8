// Package profile реализует страницу профиля, изменение профиля
// с загрузкой изображения и смену текущего пароля.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/services/auth"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const (
	msgProfileUpdated  = "Profile updated successfully"
	msgUpdateFailed    = "Error updating profile"
	msgFileTooLarge    = "File size too large"
	msgPasswordChanged = "Password changed successfully"
	msgPasswordFailed  = "Error changing password"
	msgLoadFailed      = "Error loading profile"
	msgInvalidInput    = "Invalid form data"

	profileURL        = "/profile"
	changePasswordURL = "/changeCurrentPassword"

	pictureField = "profilePicture"
	// Запас сверх размера файла на остальные поля multipart-формы.
	formOverhead = 64 << 10
)

// PasswordRequest: форма смены пароля.
type PasswordRequest struct {
	CurrentPassword    string `form:"currentPassword" json:"currentPassword"`
	NewPassword        string `form:"newPassword" json:"newPassword"`
	ConfirmNewPassword string `form:"confirmNewPassword" json:"confirmNewPassword"`
}

// Service описывает операции над собственной учётной записью.
type Service interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, in auth.ProfileInput) (*models.User, error)
	ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error
}

// Handler обрабатывает страницы профиля.
type Handler struct {
	log        *slog.Logger
	service    Service
	maxPicture int64
}

// New создаёт Handler. maxPicture ограничивает размер загружаемого изображения.
func New(log *slog.Logger, service Service, maxPicture int64) *Handler {
	return &Handler{log: log, service: service, maxPicture: maxPicture}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// Show отдаёт данные профиля текущего пользователя.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.profile.Show")
	s := session.FromContext(r.Context())

	data := map[string]any{"title": "Profile"}
	user, err := h.service.GetUser(r.Context(), s.User().ID)
	if err != nil {
		log.Error("failed to load profile", sl.Err(err))
		s.AddFlash(session.FlashError, msgLoadFailed)
	} else {
		data["profile"] = user.View()
	}
	response.RenderPage(w, r, data)
}

// Update меняет имя, имя пользователя и изображение профиля.
// Форма передаётся как multipart/form-data; файл необязателен.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.profile.Update")
	s := session.FromContext(r.Context())
	userID := s.User().ID

	r.Body = http.MaxBytesReader(w, r.Body, h.maxPicture+formOverhead)
	if err := r.ParseMultipartForm(h.maxPicture); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Info("upload rejected", sl.Err(err))
			response.FlashRedirect(w, r, session.FlashError, msgFileTooLarge, profileURL)
			return
		}
		response.ErrorRedirect(w, r, log, err, msgInvalidInput, profileURL)
		return
	}

	in := auth.ProfileInput{
		Name:     r.FormValue("name"),
		Username: r.FormValue("username"),
	}
	file, _, err := r.FormFile(pictureField)
	switch {
	case err == nil:
		defer file.Close()
		in.Picture = file
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		response.ErrorRedirect(w, r, log, err, msgUpdateFailed, profileURL)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		response.ErrorRedirect(w, r, log, err, msgUpdateFailed, profileURL)
		return
	}

	s.UpdateUser(session.Snapshot(user))
	log.Info("profile updated", sl.UserID(userID))
	response.FlashRedirect(w, r, session.FlashSuccess, msgProfileUpdated, profileURL)
}

// PasswordForm отдаёт данные страницы смены пароля.
func (h *Handler) PasswordForm(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Change Current Password"})
}

// ChangePassword меняет пароль после проверки текущего.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.profile.ChangePassword")
	s := session.FromContext(r.Context())
	userID := s.User().ID

	var req PasswordRequest
	if err := render.Decode(r, &req); err != nil {
		response.ErrorRedirect(w, r, log, err, msgInvalidInput, changePasswordURL)
		return
	}

	err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		response.ErrorRedirect(w, r, log, err, msgPasswordFailed, changePasswordURL)
		return
	}

	// Сервис завершил все сессии пользователя; текущая получает новый идентификатор.
	s.Login(*s.User())
	response.FlashRedirect(w, r, session.FlashSuccess, msgPasswordChanged, profileURL)
}
