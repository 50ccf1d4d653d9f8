package queries

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/services/admin"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

const (
	adminID = "9f1c2d3e-4b5a-4c6d-8e7f-001122334455"
	userID  = "1a2b3c4d-5e6f-4a7b-8c9d-aabbccddeeff"
	queryID = "7e8f9a0b-1c2d-4e3f-9a4b-5c6d7e8f9a0b"
)

type AdminServiceMock struct {
	mock.Mock
}

func (m *AdminServiceMock) Dashboard(ctx context.Context) (models.Dashboard, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Dashboard), args.Error(1)
}

func (m *AdminServiceMock) ListQueries(ctx context.Context, status string) ([]models.Query, error) {
	args := m.Called(ctx, status)
	q, _ := args.Get(0).([]models.Query)
	return q, args.Error(1)
}

func (m *AdminServiceMock) ListFlaggedUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	u, _ := args.Get(0).([]*models.User)
	return u, args.Error(1)
}

func (m *AdminServiceMock) Respond(ctx context.Context, queryID, answer string) error {
	return m.Called(ctx, queryID, answer).Error(0)
}

func (m *AdminServiceMock) Suspend(ctx context.Context, actorID, userID string) error {
	return m.Called(ctx, actorID, userID).Error(0)
}

func (m *AdminServiceMock) Unsuspend(ctx context.Context, actorID, userID string) error {
	return m.Called(ctx, actorID, userID).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/adminQuery/Dashboard", h.Dashboard)
	r.Get("/adminQuery/Dashboard/queryList", h.List)
	r.Get("/adminQuery/Dashboard/flaggedUsers", h.FlaggedUsers)
	r.Post("/adminQuery/Dashboard/queryRespond/{id}", h.Respond)
	r.Post("/adminQuery/Dashboard/flaggedUsers/suspend/{id}", h.Suspend)
	r.Post("/adminQuery/Dashboard/flaggedUsers/unsuspend/{id}", h.Unsuspend)
	return r
}

func do(h http.Handler, method, target string, form url.Values, s *session.Session) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req = req.WithContext(session.WithSession(req.Context(), s))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func adminSession() *session.Session {
	return session.NewSession(&session.User{ID: adminID, IsAdmin: true})
}

func TestDashboard(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		m := new(AdminServiceMock)
		m.On("Dashboard", mock.Anything).Return(models.Dashboard{TotalQueries: 7, AnsweredQueries: 2, PendingQueries: 5, FlaggedUsers: 1, TotalUsers: 4}, nil).Once()

		rec := do(newRouter(New(newNoopLogger(), m)), http.MethodGet, dashboardURL, nil, adminSession())

		require.Equal(t, http.StatusOK, rec.Code)
		var got struct {
			Flashes []session.Flash `json:"flashes"`
			Data    struct {
				Stats models.Dashboard `json:"stats"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, 5, got.Data.Stats.PendingQueries)
		assert.Empty(t, got.Flashes)
	})

	t.Run("failure shows zeros and a notice", func(t *testing.T) {
		m := new(AdminServiceMock)
		m.On("Dashboard", mock.Anything).
			Return(models.Dashboard{}, apperr.Wrap(apperr.ErrStorage, admin.MsgDashboardError, assert.AnError)).Once()

		rec := do(newRouter(New(newNoopLogger(), m)), http.MethodGet, dashboardURL, nil, adminSession())

		require.Equal(t, http.StatusOK, rec.Code)
		var got struct {
			Flashes []session.Flash `json:"flashes"`
			Data    struct {
				Stats models.Dashboard `json:"stats"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, models.Dashboard{}, got.Data.Stats)
		assert.Equal(t, []session.Flash{{Kind: session.FlashError, Message: admin.MsgDashboardError}}, got.Flashes)
	})
}

func TestList(t *testing.T) {
	m := new(AdminServiceMock)
	m.On("ListQueries", mock.Anything, models.QueryPending).
		Return([]models.Query{{ID: queryID, Status: models.QueryPending}}, nil).Once()
	m.On("ListQueries", mock.Anything, "Closed").
		Return(nil, apperr.Validation(admin.MsgInvalidStatusQuery)).Once()
	router := newRouter(New(newNoopLogger(), m))

	rec := do(router, http.MethodGet, queryListURL+"?status=Pending", nil, adminSession())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Pending Queries"`)

	s := adminSession()
	rec = do(router, http.MethodGet, queryListURL+"?status=Closed", nil, s)
	assert.Equal(t, dashboardURL, rec.Header().Get("Location"))
	assert.Equal(t, []session.Flash{{Kind: session.FlashError, Message: admin.MsgInvalidStatusQuery}}, s.PopFlashes())

	m.AssertExpectations(t)
}

func TestRespond(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantFlash session.Flash
	}{
		{name: "answered", wantFlash: session.Flash{Kind: session.FlashSuccess, Message: admin.MsgResponded}},
		{
			name:      "blank",
			err:       apperr.Validation(admin.MsgBlankResponse),
			wantFlash: session.Flash{Kind: session.FlashError, Message: admin.MsgBlankResponse},
		},
		{
			name:      "already answered",
			err:       apperr.New(apperr.ErrNotFound, admin.MsgQueryNotFound),
			wantFlash: session.Flash{Kind: session.FlashError, Message: admin.MsgQueryNotFound},
		},
		{
			name:      "storage failure",
			err:       apperr.Storage(assert.AnError),
			wantFlash: session.Flash{Kind: session.FlashError, Message: msgRespondFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(AdminServiceMock)
			m.On("Respond", mock.Anything, queryID, "Take it to bin 4").Return(tt.err).Once()
			s := adminSession()

			rec := do(newRouter(New(newNoopLogger(), m)), http.MethodPost,
				"/adminQuery/Dashboard/queryRespond/"+queryID, url.Values{"responseText": {"Take it to bin 4"}}, s)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, queryListURL, rec.Header().Get("Location"))
			assert.Equal(t, []session.Flash{tt.wantFlash}, s.PopFlashes())
			m.AssertExpectations(t)
		})
	}
}

func TestSuspendUnsuspend(t *testing.T) {
	m := new(AdminServiceMock)
	m.On("Suspend", mock.Anything, adminID, userID).Return(nil).Once()
	m.On("Unsuspend", mock.Anything, adminID, userID).Return(nil).Once()
	m.On("Suspend", mock.Anything, adminID, "missing").Return(apperr.New(apperr.ErrNotFound, admin.MsgUserNotFound)).Once()
	router := newRouter(New(newNoopLogger(), m))

	s := adminSession()
	rec := do(router, http.MethodPost, "/adminQuery/Dashboard/flaggedUsers/suspend/"+userID, url.Values{}, s)
	assert.Equal(t, flaggedURL, rec.Header().Get("Location"))
	assert.Equal(t, []session.Flash{{Kind: session.FlashSuccess, Message: admin.MsgSuspended}}, s.PopFlashes())

	rec = do(router, http.MethodPost, "/adminQuery/Dashboard/flaggedUsers/unsuspend/"+userID, url.Values{}, s)
	assert.Equal(t, flaggedURL, rec.Header().Get("Location"))
	assert.Equal(t, []session.Flash{{Kind: session.FlashSuccess, Message: admin.MsgUnsuspended}}, s.PopFlashes())

	rec = do(router, http.MethodPost, "/adminQuery/Dashboard/flaggedUsers/suspend/missing", url.Values{}, s)
	assert.Equal(t, flaggedURL, rec.Header().Get("Location"))
	assert.Equal(t, []session.Flash{{Kind: session.FlashError, Message: admin.MsgUserNotFound}}, s.PopFlashes())

	m.AssertExpectations(t)
}

func TestSuspendSelfLogsOut(t *testing.T) {
	m := new(AdminServiceMock)
	m.On("Suspend", mock.Anything, adminID, adminID).Return(nil).Once()
	s := adminSession()

	rec := do(newRouter(New(newNoopLogger(), m)), http.MethodPost,
		"/adminQuery/Dashboard/flaggedUsers/suspend/"+adminID, url.Values{}, s)

	assert.Equal(t, adminLoginURL, rec.Header().Get("Location"))
	assert.Nil(t, s.User())
}

func TestFlaggedUsers_HidesSecrets(t *testing.T) {
	m := new(AdminServiceMock)
	m.On("ListFlaggedUsers", mock.Anything).
		Return([]*models.User{{ID: userID, Username: "spammer", Flagged: true, PasswordHash: "$2a$10$hash"}}, nil).Once()

	rec := do(newRouter(New(newNoopLogger(), m)), http.MethodGet, flaggedURL, nil, adminSession())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"spammer"`)
	assert.NotContains(t, rec.Body.String(), "$2a$10$hash")
}
