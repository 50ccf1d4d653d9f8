package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/jwt"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
)

const (
	sessionKeyPrefix = "session:"
	userSetPrefix    = "user_sessions:"
)

// Store хранилище сессий.
type Store interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	SetExisting(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
	AddMember(ctx context.Context, key, member string, expiration time.Duration) error
	RemoveMember(ctx context.Context, key, member string) error
	Members(ctx context.Context, key string) ([]string, error)
}

// Options параметры cookie и времени жизни сессий.
type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager загружает и сохраняет сессии.
type Manager struct {
	log    *slog.Logger
	store  Store
	tokens jwt.Maker
	opts   Options
}

// NewManager создаёт менеджер сессий.
func NewManager(log *slog.Logger, store Store, tokens jwt.Maker, opts Options) *Manager {
	return &Manager{
		log:    log,
		store:  store,
		tokens: tokens,
		opts:   opts,
	}
}

// LoadAndSave загружает сессию по cookie, кладёт её в контекст запроса
// и сохраняет изменения перед отправкой заголовков ответа.
func (m *Manager) LoadAndSave(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.load(r)
		ctx := WithSession(r.Context(), s)
		cw := &commitWriter{ResponseWriter: w, commit: func() {
			m.commit(ctx, w, s)
		}}
		next.ServeHTTP(cw, r.WithContext(ctx))
		cw.commitOnce()
	})
}

func (m *Manager) load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return newSession()
	}
	claims, err := m.tokens.ParseToken(cookie.Value)
	if err != nil {
		m.log.Debug("invalid session cookie", sl.Err(err))
		return newSession()
	}

	s := &Session{id: claims.SessionID()}
	found, err := m.store.Get(r.Context(), sessionKeyPrefix+s.id, &s.data)
	if err != nil {
		m.log.Error("failed to load session", sl.Err(err))
		return newSession()
	}
	if !found {
		return newSession()
	}
	return s
}

func (m *Manager) commit(ctx context.Context, w http.ResponseWriter, s *Session) {
	// Сохранение не должно обрываться вместе с запросом клиента.
	ctx = context.WithoutCancel(ctx)

	if s.prevID != "" {
		m.drop(ctx, s.prevID, s.data.User)
	}
	if s.destroyed {
		m.drop(ctx, s.id, s.data.User)
		m.expireCookie(w)
		return
	}

	if s.dirty {
		saved, err := m.save(ctx, w, s)
		switch {
		case err != nil:
			m.log.Error("failed to save session", sl.Err(err))
		case !saved:
			return
		}
		if u := s.data.User; u != nil {
			if err := m.store.AddMember(ctx, userSetPrefix+u.ID, s.id, m.opts.TTL); err != nil {
				m.log.Error("failed to index session", sl.Err(err), sl.UserID(u.ID))
			}
		}
	}

	if s.isNew {
		token, err := m.tokens.GenerateToken(s.id)
		if err != nil {
			m.log.Error("failed to sign session cookie", sl.Err(err))
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     m.opts.CookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(m.opts.TTL.Seconds()),
			HttpOnly: true,
			Secure:   m.opts.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// save записывает сессию. Существующую сессию с пользователем пишет только
// поверх живого ключа: если её удалил InvalidateUser во время запроса,
// cookie сбрасывается и save возвращает false.
func (m *Manager) save(ctx context.Context, w http.ResponseWriter, s *Session) (bool, error) {
	key := sessionKeyPrefix + s.id
	if s.isNew || s.data.User == nil {
		if err := m.store.Set(ctx, key, s.data, m.opts.TTL); err != nil {
			return false, err
		}
		return true, nil
	}

	ok, err := m.store.SetExisting(ctx, key, s.data, m.opts.TTL)
	if err != nil {
		return false, err
	}
	if !ok {
		m.log.Info("session invalidated during request", sl.UserID(s.data.User.ID))
		m.expireCookie(w)
	}
	return ok, nil
}

func (m *Manager) drop(ctx context.Context, id string, u *User) {
	if err := m.store.Invalidate(ctx, sessionKeyPrefix+id); err != nil {
		m.log.Error("failed to delete session", sl.Err(err))
	}
	if u != nil {
		if err := m.store.RemoveMember(ctx, userSetPrefix+u.ID, id); err != nil {
			m.log.Error("failed to unindex session", sl.Err(err), sl.UserID(u.ID))
		}
	}
}

// InvalidateUser удаляет все сессии пользователя. После этого пользователь
// считается вышедшим при следующем запросе.
func (m *Manager) InvalidateUser(ctx context.Context, userID string) error {
	ids, err := m.store.Members(ctx, userSetPrefix+userID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, userSetPrefix+userID)
	return m.store.Invalidate(ctx, keys...)
}

func (m *Manager) expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// commitWriter сохраняет сессию перед первой записью заголовков.
type commitWriter struct {
	http.ResponseWriter
	once   sync.Once
	commit func()
}

func (w *commitWriter) commitOnce() {
	w.once.Do(w.commit)
}

func (w *commitWriter) WriteHeader(code int) {
	w.commitOnce()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.commitOnce()
	return w.ResponseWriter.Write(b)
}

// Unwrap позволяет http.ResponseController добраться до исходного writer.
func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
