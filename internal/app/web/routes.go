// Package web собирает HTTP-приложение: маршруты, сервисы и их зависимости.
package web

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminqueries "github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/admin/queries"
	adminusers "github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/admin/users"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/auth/recovery"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/pages"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/profile"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/query"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/reminder"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

// Handlers обработчики всех разделов приложения.
type Handlers struct {
	Pages        *pages.Handler
	Register     *register.Handler
	Login        *login.Handler
	Recovery     *recovery.Handler
	Profile      *profile.Handler
	Query        *query.Handler
	Reminder     *reminder.Handler
	AdminUsers   *adminusers.Handler
	AdminQueries *adminqueries.Handler
}

// RegisterRoutes регистрирует все маршруты приложения. trustedProxy разрешает
// брать адрес клиента из X-Forwarded-For и X-Real-IP; без прокси эти
// заголовки задаёт сам клиент, и лимит по IP обходится их подменой.
func RegisterRoutes(r chi.Router, logger *slog.Logger, h Handlers, sessions *session.Manager,
	limiter *middlewarectx.IPRateLimiter, m *metrics.Metrics, gatherer prometheus.Gatherer, trustedProxy bool) {
	// Глобальные middleware
	r.Use(middleware.RequestID)
	if trustedProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		m.Middleware,
	)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(sessions.LoadAndSave)

		// Открытые страницы
		r.Get("/", h.Pages.Home)
		r.Get("/articles", h.Pages.Articles)
		r.Get("/articles/{slug}", h.Pages.Article)
		r.Get("/map", h.Pages.Map)
		r.Get("/logout", logout.New(logger))

		// Формы для гостей
		r.With(middlewarectx.RequireGuest).Get("/register", h.Register.Form)
		r.With(middlewarectx.RequireGuest).Get("/login", h.Login.Form)
		r.With(middlewarectx.RequireGuest).Get("/admin/login", h.Login.AdminForm)
		r.Get("/forgotpassword", h.Recovery.ForgotForm)
		r.Get("/resetpassword", h.Recovery.ResetForm)
		r.Post("/resetpassword", h.Recovery.Reset)

		// Формы с ограничением частоты по адресу клиента
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, limiter))
			r.Post("/register", h.Register.ServeHTTP)
			r.Post("/login", h.Login.ServeHTTP)
			r.Post("/admin/login", h.Login.Admin)
			r.Post("/forgotpassword", h.Recovery.Forgot)
		})

		// Группа для вошедших пользователей
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RequireAuthenticated(logger))

			r.Get("/profile", h.Profile.Show)
			r.Post("/profile/update", h.Profile.Update)
			r.Get("/changeCurrentPassword", h.Profile.PasswordForm)
			r.Post("/changeCurrentPassword", h.Profile.ChangePassword)

			r.Route("/query", func(r chi.Router) {
				r.Get("/Dashboard", h.Query.Dashboard)
				r.Get("/new", h.Query.Form)
				r.Post("/submit", h.Query.Submit)
				r.Get("/myqueries", h.Query.MyQueries)
			})

			r.Route("/reminder", func(r chi.Router) {
				r.Get("/reminderDashboard", h.Reminder.Dashboard)
				r.Get("/new", h.Reminder.Form)
				r.Post("/submit", h.Reminder.Submit)
				r.Get("/myreminders", h.Reminder.MyReminders)
				r.Post("/delete/{id}", h.Reminder.Delete)
			})
		})

		// Группа администратора
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RequireAuthenticated(logger))
			r.Use(middlewarectx.RequireAdmin(logger))

			r.Get("/admin/dashboard", h.AdminUsers.Dashboard)
			r.Get("/admin/users", h.AdminUsers.List)
			r.Get("/admin/users/edit/{id}", h.AdminUsers.EditForm)
			r.Post("/admin/users/edit/{id}", h.AdminUsers.Edit)
			r.Post("/admin/users/reset-picture/{id}", h.AdminUsers.ResetPicture)
			r.Get("/admin/users/history/{id}", h.AdminUsers.History)

			r.Route("/adminQuery/Dashboard", func(r chi.Router) {
				r.Get("/", h.AdminQueries.Dashboard)
				r.Get("/queryList", h.AdminQueries.List)
				r.Get("/flaggedUsers", h.AdminQueries.FlaggedUsers)
				r.Post("/queryRespond/{id}", h.AdminQueries.Respond)
				r.Post("/flaggedUsers/suspend/{id}", h.AdminQueries.Suspend)
				r.Post("/flaggedUsers/unsuspend/{id}", h.AdminQueries.Unsuspend)
			})
		})
	})
}

