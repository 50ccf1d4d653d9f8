// Package recovery реализует страницы восстановления пароля по ссылке из письма.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
	svc "github.com/magabrotheeeer/ewaste-hub/internal/services/recovery"
)

const (
	msgRequestFailed = "Error processing password recovery request"
	msgResetFailed   = "Error resetting password"
	msgInvalidInput  = "Invalid form data"

	forgotURL = "/forgotpassword"
	resetURL  = "/resetpassword"
	loginURL  = "/login"
)

// ForgotRequest: форма запроса ссылки.
type ForgotRequest struct {
	Email string `form:"email" json:"email"`
}

// ResetRequest: форма нового пароля.
type ResetRequest struct {
	Token    string `form:"token" json:"token"`
	Password string `form:"password" json:"password"`
}

// Service описывает восстановление пароля.
type Service interface {
	RequestPasswordReset(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Handler обрабатывает страницы восстановления пароля.
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

// ForgotForm отдаёт данные страницы запроса ссылки.
func (h *Handler) ForgotForm(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Forgot Password"})
}

// Forgot принимает почту и отправляет ссылку, если такой пользователь есть.
// Ответ не зависит от того, зарегистрирована ли почта.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.recovery.Forgot")

	var req ForgotRequest
	if err := render.Decode(r, &req); err != nil {
		response.ErrorRedirect(w, r, log, err, msgInvalidInput, forgotURL)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		response.ErrorRedirect(w, r, log, err, msgRequestFailed, forgotURL)
		return
	}
	response.FlashRedirect(w, r, session.FlashSuccess, svc.MsgRequestAccepted, loginURL)
}

// ResetForm проверяет токен из ссылки и отдаёт данные формы нового пароля.
func (h *Handler) ResetForm(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.recovery.ResetForm")

	token := r.URL.Query().Get("token")
	if err := h.service.ValidateResetToken(r.Context(), token); err != nil {
		response.ErrorRedirect(w, r, log, err, svc.MsgInvalidToken, forgotURL)
		return
	}
	response.RenderPage(w, r, map[string]any{"title": "Reset Password", "token": token})
}

// Reset устанавливает новый пароль по токену.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.recovery.Reset")

	var req ResetRequest
	if err := render.Decode(r, &req); err != nil {
		response.ErrorRedirect(w, r, log, err, msgInvalidInput, forgotURL)
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.Password)
	switch {
	case err == nil:
		// Сервис завершил все сессии пользователя; текущая остаётся гостевой.
		if s := session.FromContext(r.Context()); s != nil {
			s.ClearUser()
		}
		response.FlashRedirect(w, r, session.FlashSuccess, svc.MsgPasswordReset, loginURL)
	case errors.Is(err, apperr.ErrValidation):
		response.ErrorRedirect(w, r, log, err, msgResetFailed, resetURL+"?token="+url.QueryEscape(req.Token))
	default:
		response.ErrorRedirect(w, r, log, err, msgResetFailed, forgotURL)
	}
}
