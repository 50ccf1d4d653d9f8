// Package response содержит вспомогательные типы и функции для формирования
// ответов HTTP-обработчиков: JSON-данные страницы с flash-уведомлениями
// и перенаправления с уведомлением, сохранённым в сессии.
package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const (
	// StatusOK: значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError: значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// Response описывает стандартную структуру JSON-ответа сервера.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Page данные страницы: текущий пользователь, накопленные уведомления и содержимое.
type Page struct {
	Status  string          `json:"status"`
	User    *session.User   `json:"user,omitempty"`
	Flashes []session.Flash `json:"flashes"`
	Data    any             `json:"data,omitempty"`
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// RenderPage отдаёт данные страницы и забирает из сессии flash-уведомления.
func RenderPage(w http.ResponseWriter, r *http.Request, data any) {
	page := Page{Status: StatusOK, Flashes: []session.Flash{}, Data: data}
	if s := session.FromContext(r.Context()); s != nil {
		page.User = s.User()
		page.Flashes = s.PopFlashes()
	}
	render.JSON(w, r, page)
}

// Redirect перенаправляет на url методом GET.
func Redirect(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// FlashRedirect сохраняет уведомление в сессии и перенаправляет на url.
func FlashRedirect(w http.ResponseWriter, r *http.Request, kind, msg, url string) {
	if s := session.FromContext(r.Context()); s != nil {
		s.AddFlash(kind, msg)
	}
	Redirect(w, r, url)
}

// ErrorRedirect превращает ошибку сервиса в уведомление и перенаправление.
// Сбои хранилища и неожиданные ошибки логируются, текст для пользователя
// берётся из ошибки, иначе используется fallback.
func ErrorRedirect(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, fallback, url string) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.ErrStorage {
		log.Error("request failed", sl.Err(err))
	} else {
		log.Info("request rejected", sl.Err(err))
	}
	FlashRedirect(w, r, session.FlashError, apperr.Message(err, fallback), url)
}
