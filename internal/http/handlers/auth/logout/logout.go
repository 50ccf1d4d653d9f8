// Package logout завершает сессию пользователя.
package logout

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const loginURL = "/login"

// New возвращает обработчик выхода: сессия удаляется, клиент уходит на страницу входа.
func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.auth.logout"

		if s := session.FromContext(r.Context()); s != nil {
			if u := s.User(); u != nil {
				log.Info("user logged out",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("user_id", u.ID),
				)
			}
			s.Destroy()
		}
		response.Redirect(w, r, loginURL)
	}
}
