// Package register реализует страницу и обработчик регистрации пользователя.
//
// При ошибке введённые имя, логин и почта сохраняются в сессии и
// подставляются в форму при следующем показе; пароли не сохраняются.
package register

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/services/auth"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const (
	msgRegistered   = "You are now registered and can log in"
	msgFailed       = "An error occurred during registration."
	msgInvalidInput = "Invalid form data"

	formURL  = "/register"
	loginURL = "/login"
)

// Request: поля формы регистрации.
type Request struct {
	Name      string `form:"name" json:"name"`
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	Password  string `form:"password" json:"password"`
	Password2 string `form:"password2" json:"password2"`
	AdminCode string `form:"adminCode" json:"adminCode"`
}

// Service описывает регистрацию пользователя.
type Service interface {
	Register(ctx context.Context, in auth.RegisterInput) (string, error)
}

// Handler обрабатывает страницу регистрации.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Form отдаёт данные страницы регистрации с полями прошлой неудачной попытки.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"title": "Register"}
	if s := session.FromContext(r.Context()); s != nil {
		if rd := s.PopRegisterData(); rd != nil {
			data["name"] = rd.Name
			data["username"] = rd.Username
			data["email"] = rd.Email
		}
	}
	response.RenderPage(w, r, data)
}

// ServeHTTP принимает форму регистрации.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

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

	id, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:      req.Name,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Password2: req.Password2,
		AdminCode: req.AdminCode,
	})
	if err != nil {
		if s := session.FromContext(r.Context()); s != nil {
			s.SetRegisterData(session.RegisterData{
				Name:     req.Name,
				Username: req.Username,
				Email:    req.Email,
			})
		}
		response.ErrorRedirect(w, r, log, err, msgFailed, formURL)
		return
	}

	log.Info("user registered", sl.UserID(id))
	response.FlashRedirect(w, r, session.FlashSuccess, msgRegistered, loginURL)
}
