package profile

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/services/auth"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
)

type ProfileServiceMock struct {
	mock.Mock
}

func (m *ProfileServiceMock) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *ProfileServiceMock) UpdateProfile(ctx context.Context, userID string, in auth.ProfileInput) (*models.User, error) {
	var picture []byte
	if in.Picture != nil {
		picture, _ = io.ReadAll(in.Picture)
	}
	args := m.Called(ctx, userID, in.Name, in.Username, string(picture))
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *ProfileServiceMock) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error {
	return m.Called(ctx, userID, current, newPassword, confirm).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func loggedIn() *session.Session {
	return session.NewSession(&session.User{ID: "u1", Name: "Alice", Username: "alice"})
}

func multipartRequest(t *testing.T, fields map[string]string, picture []byte, s *session.Session) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if picture != nil {
		fw, err := mw.CreateFormFile(pictureField, "me.png")
		require.NoError(t, err)
		_, err = fw.Write(picture)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/profile/update", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req.WithContext(session.WithSession(req.Context(), s))
}

func TestUpdate(t *testing.T) {
	updated := &models.User{ID: "u1", Name: "Alice B", Username: "aliceb", ProfilePicture: "https://cdn/profiles/u1/x.png"}

	t.Run("with picture refreshes the session snapshot", func(t *testing.T) {
		m := new(ProfileServiceMock)
		m.On("UpdateProfile", mock.Anything, "u1", "Alice B", "aliceb", "PNGDATA").Return(updated, nil).Once()
		s := loggedIn()
		rec := httptest.NewRecorder()

		New(newNoopLogger(), m, 2<<20).Update(rec,
			multipartRequest(t, map[string]string{"name": "Alice B", "username": "aliceb"}, []byte("PNGDATA"), s))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, profileURL, rec.Header().Get("Location"))
		assert.Equal(t, []session.Flash{{Kind: session.FlashSuccess, Message: msgProfileUpdated}}, s.PopFlashes())
		require.NotNil(t, s.User())
		assert.Equal(t, "aliceb", s.User().Username)
		assert.Equal(t, updated.ProfilePicture, s.User().ProfilePicture)
		m.AssertExpectations(t)
	})

	t.Run("without picture", func(t *testing.T) {
		m := new(ProfileServiceMock)
		m.On("UpdateProfile", mock.Anything, "u1", "Alice B", "alice", "").Return(updated, nil).Once()
		s := loggedIn()

		New(newNoopLogger(), m, 2<<20).Update(httptest.NewRecorder(),
			multipartRequest(t, map[string]string{"name": "Alice B", "username": "alice"}, nil, s))

		m.AssertExpectations(t)
	})

	t.Run("url-encoded form", func(t *testing.T) {
		m := new(ProfileServiceMock)
		m.On("UpdateProfile", mock.Anything, "u1", "Alice B", "alice", "").Return(updated, nil).Once()
		s := loggedIn()

		form := url.Values{"name": {"Alice B"}, "username": {"alice"}}
		req := httptest.NewRequest(http.MethodPost, "/profile/update", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req = req.WithContext(session.WithSession(req.Context(), s))

		New(newNoopLogger(), m, 2<<20).Update(httptest.NewRecorder(), req)

		m.AssertExpectations(t)
	})

	t.Run("username taken", func(t *testing.T) {
		m := new(ProfileServiceMock)
		m.On("UpdateProfile", mock.Anything, "u1", "Alice", "bob", "").
			Return(nil, apperr.New(apperr.ErrConflict, auth.MsgUsernameTaken)).Once()
		s := loggedIn()

		New(newNoopLogger(), m, 2<<20).Update(httptest.NewRecorder(),
			multipartRequest(t, map[string]string{"name": "Alice", "username": "bob"}, nil, s))

		assert.Equal(t, []session.Flash{{Kind: session.FlashError, Message: auth.MsgUsernameTaken}}, s.PopFlashes())
		assert.Equal(t, "alice", s.User().Username)
	})

	t.Run("oversized upload", func(t *testing.T) {
		m := new(ProfileServiceMock)
		s := loggedIn()
		rec := httptest.NewRecorder()

		New(newNoopLogger(), m, 1024).Update(rec,
			multipartRequest(t, map[string]string{"name": "Alice"}, bytes.Repeat([]byte{0x89}, 200<<10), s))

		assert.Equal(t, profileURL, rec.Header().Get("Location"))
		assert.Equal(t, []session.Flash{{Kind: session.FlashError, Message: msgFileTooLarge}}, s.PopFlashes())
		m.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestChangePassword(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantLocation string
		wantFlash    session.Flash
	}{
		{
			name:         "success",
			wantLocation: profileURL,
			wantFlash:    session.Flash{Kind: session.FlashSuccess, Message: msgPasswordChanged},
		},
		{
			name:         "wrong current password",
			err:          apperr.New(apperr.ErrInvalidCredential, auth.MsgCurrentPasswordWrong),
			wantLocation: changePasswordURL,
			wantFlash:    session.Flash{Kind: session.FlashError, Message: auth.MsgCurrentPasswordWrong},
		},
		{
			name:         "storage failure",
			err:          apperr.Storage(assert.AnError),
			wantLocation: changePasswordURL,
			wantFlash:    session.Flash{Kind: session.FlashError, Message: msgPasswordFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(ProfileServiceMock)
			m.On("ChangePassword", mock.Anything, "u1", "old1!x", "new1!x", "new1!x").Return(tt.err).Once()
			s := loggedIn()
			oldID := s.ID()

			form := url.Values{"currentPassword": {"old1!x"}, "newPassword": {"new1!x"}, "confirmNewPassword": {"new1!x"}}
			req := httptest.NewRequest(http.MethodPost, changePasswordURL, strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req = req.WithContext(session.WithSession(req.Context(), s))
			rec := httptest.NewRecorder()

			New(newNoopLogger(), m, 2<<20).ChangePassword(rec, req)

			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, []session.Flash{tt.wantFlash}, s.PopFlashes())
			require.NotNil(t, s.User())
			assert.Equal(t, "u1", s.User().ID)
			if tt.err == nil {
				assert.NotEqual(t, oldID, s.ID())
			} else {
				assert.Equal(t, oldID, s.ID())
			}
			m.AssertExpectations(t)
		})
	}
}

func TestShow(t *testing.T) {
	m := new(ProfileServiceMock)
	m.On("GetUser", mock.Anything, "u1").Return(&models.User{ID: "u1", Username: "alice", PasswordHash: "secret"}, nil).Once()
	s := loggedIn()
	req := httptest.NewRequest(http.MethodGet, profileURL, nil)
	req = req.WithContext(session.WithSession(req.Context(), s))
	rec := httptest.NewRecorder()

	New(newNoopLogger(), m, 2<<20).Show(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
	assert.NotContains(t, rec.Body.String(), "secret")
}
