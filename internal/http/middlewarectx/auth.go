// Package middlewarectx содержит HTTP middleware доступа к страницам.
//
// Решение принимается только по снимку пользователя в текущей сессии.
// Снимок кешируется на время жизни сессии; при блокировке и правке
// пользователя сессии удаляются, поэтому устаревший снимок не переживает
// эти изменения.
package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

// Сообщения и адреса перенаправлений.
const (
	MsgLoginRequired = "Please log in to view this resource"
	MsgAdminRequired = "Admin access required"

	LoginURL      = "/login"
	AdminLoginURL = "/admin/login"
	ProfileURL    = "/profile"
)

func currentUser(r *http.Request) *session.User {
	s := session.FromContext(r.Context())
	if s == nil {
		return nil
	}
	return s.User()
}

// RequireAuthenticated пропускает запрос, только если пользователь вошёл.
func RequireAuthenticated(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if currentUser(r) == nil {
				log.Debug("anonymous request to protected page",
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				response.FlashRedirect(w, r, session.FlashError, MsgLoginRequired, LoginURL)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireGuest пропускает только анонимные запросы, вошедших отправляет в профиль.
func RequireGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) != nil {
			response.Redirect(w, r, ProfileURL)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin пропускает запрос, только если вошёл администратор.
func RequireAdmin(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := currentUser(r)
			if u == nil || !u.IsAdmin {
				log.Warn("non-admin request to admin page",
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				response.FlashRedirect(w, r, session.FlashError, MsgAdminRequired, AdminLoginURL)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
