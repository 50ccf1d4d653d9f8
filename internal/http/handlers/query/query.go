// Package query реализует страницы обращений пользователя к администраторам.
package query

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	svc "github.com/magabrotheeeer/ewaste-hub/internal/services/query"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const (
	msgSubmitFailed = "There was an error submitting your query."
	msgListFailed   = "There was an error retrieving your queries."
	msgInvalidInput = "Invalid form data"

	dashboardURL = "/query/Dashboard"
	formURL      = "/query/new"
	listURL      = "/query/myqueries"
	loginURL     = "/login"
)

// Request: форма обращения.
type Request struct {
	Question string `form:"question" json:"question"`
}

// Service описывает приём и просмотр обращений.
type Service interface {
	Submit(ctx context.Context, userID, question string) (models.QuerySubmitResult, error)
	ListMine(ctx context.Context, userID string) ([]models.Query, error)
}

// Handler обрабатывает страницы обращений.
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
	response.RenderPage(w, r, map[string]any{"title": "Query Dashboard"})
}

// Form отдаёт данные формы нового обращения.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Create New Query"})
}

// Submit принимает обращение. Обращение сверх порога сохраняется, но автор
// блокируется и теряет текущий вход.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.query.Submit")
	s := session.FromContext(r.Context())
	userID := s.User().ID

	var req Request
	if err := render.Decode(r, &req); err != nil {
		response.ErrorRedirect(w, r, log, err, msgInvalidInput, formURL)
		return
	}

	res, err := h.service.Submit(r.Context(), userID, req.Question)
	if err != nil {
		response.ErrorRedirect(w, r, log, err, msgSubmitFailed, formURL)
		return
	}

	s.AddFlash(session.FlashSuccess, svc.MsgCreated)
	if res.OverLimit {
		log.Warn("query over limit", sl.UserID(userID), slog.Bool("newly_flagged", res.NewlyFlagged))
		s.AddFlash(session.FlashError, svc.MsgOverLimit)
		s.ClearUser()
		response.Redirect(w, r, loginURL)
		return
	}
	response.Redirect(w, r, listURL)
}

// MyQueries отдаёт обращения текущего пользователя.
func (h *Handler) MyQueries(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.query.MyQueries")
	userID := session.FromContext(r.Context()).User().ID

	queries, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		response.ErrorRedirect(w, r, log, err, msgListFailed, dashboardURL)
		return
	}
	response.RenderPage(w, r, map[string]any{"title": "My Queries", "queries": queries})
}
