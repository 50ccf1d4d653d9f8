// Package login реализует вход пользователей и администраторов.
//
// При успешном входе в сессию кладётся снимок пользователя, а сама сессия
// получает новый идентификатор. Отсутствующая почта и неверный пароль
// выдают одно и то же сообщение.
package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const (
	msgLoggedIn      = "You are now logged in"
	msgAdminLoggedIn = "You are now logged in as admin"
	msgLoginFailed   = "Error in login"
	msgAdminFailed   = "Error in admin login"
	msgInvalidInput  = "Invalid form data"
)

// Адреса страниц входа и перехода после него.
const (
	LoginURL          = "/login"
	AdminLoginURL     = "/admin/login"
	ProfileURL        = "/profile"
	AdminDashboardURL = "/admin/dashboard"
)

// Request: поля формы входа.
type Request struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Service описывает проверку учётных данных.
type Service interface {
	Login(ctx context.Context, email, password string) (*models.User, error)
	AdminLogin(ctx context.Context, email, password string) (*models.User, error)
}

// Handler обрабатывает страницы входа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Form отдаёт данные страницы входа.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Login"})
}

// AdminForm отдаёт данные страницы входа администратора.
func (h *Handler) AdminForm(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Admin Login"})
}

// ServeHTTP выполняет вход пользователя.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, "handlers.auth.login", h.service.Login, LoginURL, ProfileURL, msgLoggedIn, msgLoginFailed)
}

// Admin выполняет вход администратора.
func (h *Handler) Admin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, "handlers.auth.admin_login", h.service.AdminLogin, AdminLoginURL, AdminDashboardURL, msgAdminLoggedIn, msgAdminFailed)
}

type loginFunc func(ctx context.Context, email, password string) (*models.User, error)

func (h *Handler) login(w http.ResponseWriter, r *http.Request, op string, fn loginFunc,
	formURL, successURL, successMsg, failMsg string) {
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.Decode(r, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.FlashRedirect(w, r, session.FlashError, msgInvalidInput, formURL)
		return
	}

	user, err := fn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrSuspended) {
			if s := session.FromContext(r.Context()); s != nil {
				s.ClearUser()
			}
		}
		response.ErrorRedirect(w, r, log, err, failMsg, formURL)
		return
	}

	s := session.FromContext(r.Context())
	if s == nil {
		log.Error("session middleware is not installed")
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	s.Login(session.Snapshot(user))
	s.AddFlash(session.FlashSuccess, successMsg)

	log.Info("login success", sl.UserID(user.ID))
	response.Redirect(w, r, successURL)
}
