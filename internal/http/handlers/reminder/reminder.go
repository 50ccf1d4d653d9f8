// Package reminder реализует страницы напоминаний пользователя.
package reminder

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	svc "github.com/magabrotheeeer/ewaste-hub/internal/services/reminder"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const (
	msgInvalidInput = "Invalid form data"

	dashboardURL = "/reminder/reminderDashboard"
	formURL      = "/reminder/new"
	listURL      = "/reminder/myreminders"
)

// Request: форма напоминания. Datetime в формате поля datetime-local или RFC 3339.
type Request struct {
	Message  string `form:"message" json:"message"`
	Datetime string `form:"datetime" json:"datetime"`
}

// Service описывает операции с напоминаниями.
type Service interface {
	Create(ctx context.Context, userID, message, datetime string) (models.Reminder, error)
	ListMine(ctx context.Context, userID string) ([]models.Reminder, error)
	Delete(ctx context.Context, userID, reminderID string) error
}

// Handler обрабатывает страницы напоминаний.
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

// Dashboard отдаёт данные главной страницы раздела.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Reminder Dashboard"})
}

// Form отдаёт данные формы нового напоминания.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Create New Reminder"})
}

// Submit создаёт напоминание.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.reminder.Submit")
	userID := session.FromContext(r.Context()).User().ID

	var req Request
	if err := render.Decode(r, &req); err != nil {
		response.ErrorRedirect(w, r, log, err, msgInvalidInput, formURL)
		return
	}

	rem, err := h.service.Create(r.Context(), userID, req.Message, req.Datetime)
	if err != nil {
		response.ErrorRedirect(w, r, log, err, svc.MsgCreateFailed, formURL)
		return
	}

	log.Info("reminder created", sl.UserID(userID), slog.String("reminder_id", rem.ID))
	response.FlashRedirect(w, r, session.FlashSuccess, svc.MsgCreated, listURL)
}

// MyReminders отдаёт напоминания текущего пользователя.
func (h *Handler) MyReminders(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.reminder.MyReminders")
	userID := session.FromContext(r.Context()).User().ID

	reminders, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		response.ErrorRedirect(w, r, log, err, svc.MsgListFailed, dashboardURL)
		return
	}
	response.RenderPage(w, r, map[string]any{"title": "My Reminders", "reminders": reminders})
}

// Delete удаляет напоминание текущего пользователя.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.reminder.Delete")
	userID := session.FromContext(r.Context()).User().ID

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		response.ErrorRedirect(w, r, log, err, svc.MsgDeleteFailed, listURL)
		return
	}
	response.FlashRedirect(w, r, session.FlashSuccess, svc.MsgDeleted, listURL)
}
