// Package pages отдаёт данные статических страниц: главной, статей и карты пунктов приёма.
package pages

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/ewaste-hub/internal/http/response"
)

// Article статья раздела /articles.
type Article struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Articles список статей в порядке показа.
var Articles = []Article{
	{Slug: "disposal", Title: "Disposal Guidelines"},
	{Slug: "big-items", Title: "Big Items Disposal"},
	{Slug: "pickup-service", Title: "Pickup Service"},
}

// Handler отдаёт статические страницы.
type Handler struct {
	mapsAPIKey string
}

// New создаёт Handler. mapsAPIKey передаётся странице карты.
func New(mapsAPIKey string) *Handler {
	return &Handler{mapsAPIKey: mapsAPIKey}
}

// Home главная страница.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Home"})
}

// Articles список статей.
func (h *Handler) Articles(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{"title": "Articles", "articles": Articles})
}

// Article одна статья по slug; неизвестный slug отдаёт 404.
func (h *Handler) Article(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	for _, a := range Articles {
		if a.Slug == slug {
			response.RenderPage(w, r, map[string]any{"title": a.Title, "article": a.Slug})
			return
		}
	}
	http.NotFound(w, r)
}

// Map страница поиска пунктов приёма электроники.
func (h *Handler) Map(w http.ResponseWriter, r *http.Request) {
	response.RenderPage(w, r, map[string]any{
		"title":            "Find E-Waste Bins",
		"googleMapsApiKey": h.mapsAPIKey,
	})
}
