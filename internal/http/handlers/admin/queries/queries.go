// Package queries реализует панель администратора для разбора обращений
// и заблокированных пользователей.
package queries

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
	msgRespondFailed   = "There was an error responding to the query."
	msgListFailed      = "There was an error retrieving the queries."
	msgFlaggedFailed   = "There was an error fetching flagged users."
	msgSuspendFailed   = "There was an error suspending the user."
	msgUnsuspendFailed = "There was an error unsuspending the user."
	msgInvalidInput    = "Invalid form data"

	dashboardURL  = "/adminQuery/Dashboard"
	queryListURL  = "/adminQuery/Dashboard/queryList"
	flaggedURL    = "/adminQuery/Dashboard/flaggedUsers"
	adminLoginURL = "/admin/login"
)

// RespondRequest: форма ответа на обращение.
type RespondRequest struct {
	ResponseText string `form:"responseText" json:"responseText"`
}

// Service описывает операции администратора над обращениями.
type Service interface {
	Dashboard(ctx context.Context) (models.Dashboard, error)
	ListQueries(ctx context.Context, status string) ([]models.Query, error)
	ListFlaggedUsers(ctx context.Context) ([]*models.User, error)
	Respond(ctx context.Context, queryID, answer string) error
	Suspend(ctx context.Context, actorID, userID string) error
	Unsuspend(ctx context.Context, actorID, userID string) error
}

// Handler обрабатывает страницы разбора обращений.
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

// Dashboard отдаёт сводку по обращениям и пользователям. При сбое
// показывается нулевая сводка и уведомление об ошибке.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.queries.Dashboard")

	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		log.Error("failed to load dashboard", sl.Err(err))
		session.FromContext(r.Context()).AddFlash(session.FlashError, apperr.Message(err, admin.MsgDashboardError))
	}
	response.RenderPage(w, r, map[string]any{"title": "Admin Query Dashboard", "stats": stats})
}

// List отдаёт обращения с необязательным фильтром ?status=Pending|Answered.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.queries.List")
	status := r.URL.Query().Get("status")

	queries, err := h.service.ListQueries(r.Context(), status)
	if err != nil {
		response.ErrorRedirect(w, r, log, err, msgListFailed, dashboardURL)
		return
	}

	title := "All User Queries"
	if status != "" {
		title = status + " Queries"
	}
	response.RenderPage(w, r, map[string]any{
		"title":          title,
		"queries":        queries,
		"selectedStatus": status,
	})
}

// FlaggedUsers отдаёт заблокированных пользователей.
func (h *Handler) FlaggedUsers(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.queries.FlaggedUsers")

	users, err := h.service.ListFlaggedUsers(r.Context())
	if err != nil {
		response.ErrorRedirect(w, r, log, err, msgFlaggedFailed, dashboardURL)
		return
	}
	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	response.RenderPage(w, r, map[string]any{"title": "Flagged Users", "flaggedUsers": views})
}

// Respond отвечает на обращение.
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.queries.Respond")

	var req RespondRequest
	if err := render.Decode(r, &req); err != nil {
		response.ErrorRedirect(w, r, log, err, msgInvalidInput, queryListURL)
		return
	}
	if err := h.service.Respond(r.Context(), chi.URLParam(r, "id"), req.ResponseText); err != nil {
		response.ErrorRedirect(w, r, log, err, msgRespondFailed, queryListURL)
		return
	}
	response.FlashRedirect(w, r, session.FlashSuccess, admin.MsgResponded, queryListURL)
}

// Suspend блокирует пользователя.
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.setFlagged(w, r, "handlers.admin.queries.Suspend", h.service.Suspend, admin.MsgSuspended, msgSuspendFailed)
}

// Unsuspend снимает блокировку.
func (h *Handler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	h.setFlagged(w, r, "handlers.admin.queries.Unsuspend", h.service.Unsuspend, admin.MsgUnsuspended, msgUnsuspendFailed)
}

func (h *Handler) setFlagged(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, actorID, userID string) error, okMsg, failMsg string) {
	log := h.logger(r, op)
	s := session.FromContext(r.Context())
	actorID := s.User().ID
	userID := chi.URLParam(r, "id")

	if err := fn(r.Context(), actorID, userID); err != nil {
		response.ErrorRedirect(w, r, log, err, failMsg, flaggedURL)
		return
	}

	s.AddFlash(session.FlashSuccess, okMsg)
	if userID == actorID {
		// Собственные сессии администратора уже удалены.
		s.ClearUser()
		response.Redirect(w, r, adminLoginURL)
		return
	}
	response.Redirect(w, r, flaggedURL)
}
