package reminder

import (
	"context"
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

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	svc "github.com/magabrotheeeer/ewaste-hub/internal/services/reminder"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

type ReminderServiceMock struct {
	mock.Mock
}

func (m *ReminderServiceMock) Create(ctx context.Context, userID, message, datetime string) (models.Reminder, error) {
	args := m.Called(ctx, userID, message, datetime)
	return args.Get(0).(models.Reminder), args.Error(1)
}

func (m *ReminderServiceMock) ListMine(ctx context.Context, userID string) ([]models.Reminder, error) {
	args := m.Called(ctx, userID)
	rs, _ := args.Get(0).([]models.Reminder)
	return rs, args.Error(1)
}

func (m *ReminderServiceMock) Delete(ctx context.Context, userID, reminderID string) error {
	return m.Called(ctx, userID, reminderID).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestSubmit(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantLocation string
		wantFlash    session.Flash
	}{
		{
			name:         "created",
			wantLocation: listURL,
			wantFlash:    session.Flash{Kind: session.FlashSuccess, Message: svc.MsgCreated},
		},
		{
			name:         "past date",
			err:          apperr.New(apperr.ErrPastDate, svc.MsgPastDate),
			wantLocation: formURL,
			wantFlash:    session.Flash{Kind: session.FlashError, Message: svc.MsgPastDate},
		},
		{
			name:         "beyond horizon",
			err:          apperr.New(apperr.ErrHorizonExceeded, "Reminder date cannot be beyond year 2030."),
			wantLocation: formURL,
			wantFlash:    session.Flash{Kind: session.FlashError, Message: "Reminder date cannot be beyond year 2030."},
		},
		{
			name:         "storage failure",
			err:          apperr.Wrap(apperr.ErrStorage, svc.MsgCreateFailed, assert.AnError),
			wantLocation: formURL,
			wantFlash:    session.Flash{Kind: session.FlashError, Message: svc.MsgCreateFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(ReminderServiceMock)
			m.On("Create", mock.Anything, "u1", "Drop off old laptop", "2030-01-15T10:30").
				Return(models.Reminder{ID: "r1"}, tt.err).Once()
			s := session.NewSession(&session.User{ID: "u1"})

			form := url.Values{"message": {"Drop off old laptop"}, "datetime": {"2030-01-15T10:30"}}
			req := httptest.NewRequest(http.MethodPost, "/reminder/submit", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req = req.WithContext(session.WithSession(req.Context(), s))
			rec := httptest.NewRecorder()

			New(newNoopLogger(), m).Submit(rec, req)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, []session.Flash{tt.wantFlash}, s.PopFlashes())
			m.AssertExpectations(t)
		})
	}
}

func TestDelete(t *testing.T) {
	const reminderID = "3c9d7e8f-1a2b-4c3d-8e9f-0a1b2c3d4e5f"

	tests := []struct {
		name      string
		err       error
		wantFlash session.Flash
	}{
		{name: "deleted", wantFlash: session.Flash{Kind: session.FlashSuccess, Message: svc.MsgDeleted}},
		{
			name:      "not owned",
			err:       apperr.New(apperr.ErrNotFound, svc.MsgNotFound),
			wantFlash: session.Flash{Kind: session.FlashError, Message: svc.MsgNotFound},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(ReminderServiceMock)
			m.On("Delete", mock.Anything, "u1", reminderID).Return(tt.err).Once()
			h := New(newNoopLogger(), m)

			r := chi.NewRouter()
			r.Post("/reminder/delete/{id}", h.Delete)

			s := session.NewSession(&session.User{ID: "u1"})
			req := httptest.NewRequest(http.MethodPost, "/reminder/delete/"+reminderID, nil)
			req = req.WithContext(session.WithSession(req.Context(), s))
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			assert.Equal(t, listURL, rec.Header().Get("Location"))
			assert.Equal(t, []session.Flash{tt.wantFlash}, s.PopFlashes())
			m.AssertExpectations(t)
		})
	}
}

func TestMyReminders_Failure(t *testing.T) {
	m := new(ReminderServiceMock)
	m.On("ListMine", mock.Anything, "u1").Return(nil, apperr.Storage(assert.AnError)).Once()
	s := session.NewSession(&session.User{ID: "u1"})
	req := httptest.NewRequest(http.MethodGet, listURL, nil)
	req = req.WithContext(session.WithSession(req.Context(), s))
	rec := httptest.NewRecorder()

	New(newNoopLogger(), m).MyReminders(rec, req)

	assert.Equal(t, dashboardURL, rec.Header().Get("Location"))
	assert.Equal(t, []session.Flash{{Kind: session.FlashError, Message: svc.MsgListFailed}}, s.PopFlashes())
}
