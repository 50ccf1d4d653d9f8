package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/password"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/services/auth"
	"github.com/magabrotheeeer/ewaste-hub/internal/storage/repository"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) CreateUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *UserRepoMock) CheckTaken(ctx context.Context, email, username string) (bool, bool, error) {
	args := m.Called(ctx, email, username)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

func (m *UserRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) UsernameTakenByOther(ctx context.Context, username, excludeID string) (bool, error) {
	args := m.Called(ctx, username, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepoMock) UpdateProfile(ctx context.Context, userID, name, username, picture string) error {
	args := m.Called(ctx, userID, name, username, picture)
	return args.Error(0)
}

func (m *UserRepoMock) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	args := m.Called(ctx, userID, passwordHash)
	return args.Error(0)
}

// Мок для PictureStore
type PictureStoreMock struct {
	mock.Mock
}

func (m *PictureStoreMock) SaveProfilePicture(ctx context.Context, userID string, r io.Reader) (string, error) {
	args := m.Called(ctx, userID, r)
	return args.String(0), args.Error(1)
}

func (m *PictureStoreMock) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

// Мок для SessionInvalidator
type SessionsMock struct {
	mock.Mock
}

func (m *SessionsMock) InvalidateUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

const strongPassword = "secret1!"

func newService(users *UserRepoMock, pictures *PictureStoreMock, adminCode string) *auth.Service {
	return newServiceWithSessions(users, pictures, new(SessionsMock), adminCode)
}

func newServiceWithSessions(users *UserRepoMock, pictures *PictureStoreMock, sessions *SessionsMock, adminCode string) *auth.Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return auth.New(log, users, pictures, sessions, adminCode, nil)
}

func validInput() auth.RegisterInput {
	return auth.RegisterInput{
		Name:      "Alice",
		Username:  "alice",
		Email:     "alice@example.com",
		Password:  strongPassword,
		Password2: strongPassword,
	}
}

func hashed(t *testing.T, raw string) string {
	t.Helper()
	h, err := password.GetHash(raw)
	require.NoError(t, err)
	return h
}

func TestService_Register(t *testing.T) {
	tests := []struct {
		name       string
		adminCode  string
		input      func() auth.RegisterInput
		setupMocks func(r *UserRepoMock)
		wantKind   error
		wantMsg    string
		wantID     string
	}{
		{
			name:  "successful registration",
			input: validInput,
			setupMocks: func(r *UserRepoMock) {
				r.On("CheckTaken", mock.Anything, "alice@example.com", "alice").Return(false, false, nil).Once()
				r.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
					return u.Email == "alice@example.com" &&
						u.Username == "alice" &&
						!u.IsAdmin &&
						u.ProfilePicture == models.DefaultProfilePicture &&
						password.CompareHash(u.PasswordHash, strongPassword) == nil
				})).Return("user-1", nil).Once()
			},
			wantID: "user-1",
		},
		{
			name: "missing field",
			input: func() auth.RegisterInput {
				in := validInput()
				in.Name = "   "
				return in
			},
			wantKind: apperr.ErrValidation,
			wantMsg:  auth.MsgFillAllFields,
		},
		{
			name: "short username",
			input: func() auth.RegisterInput {
				in := validInput()
				in.Username = "al"
				return in
			},
			wantKind: apperr.ErrValidation,
			wantMsg:  auth.MsgUsernameTooShort,
		},
		{
			name: "passwords do not match",
			input: func() auth.RegisterInput {
				in := validInput()
				in.Password2 = "secret2!"
				return in
			},
			wantKind: apperr.ErrValidation,
			wantMsg:  auth.MsgPasswordsMismatch,
		},
		{
			name: "weak password",
			input: func() auth.RegisterInput {
				in := validInput()
				in.Password = "secret1"
				in.Password2 = "secret1"
				return in
			},
			wantKind: apperr.ErrValidation,
			wantMsg:  password.StrengthMessage,
		},
		{
			name:  "both taken",
			input: validInput,
			setupMocks: func(r *UserRepoMock) {
				r.On("CheckTaken", mock.Anything, "alice@example.com", "alice").Return(true, true, nil).Once()
			},
			wantKind: apperr.ErrConflict,
			wantMsg:  auth.MsgBothTaken,
		},
		{
			name:  "email taken",
			input: validInput,
			setupMocks: func(r *UserRepoMock) {
				r.On("CheckTaken", mock.Anything, "alice@example.com", "alice").Return(true, false, nil).Once()
			},
			wantKind: apperr.ErrConflict,
			wantMsg:  auth.MsgEmailTaken,
		},
		{
			name:  "username taken at insert",
			input: validInput,
			setupMocks: func(r *UserRepoMock) {
				r.On("CheckTaken", mock.Anything, "alice@example.com", "alice").Return(false, false, nil).Once()
				r.On("CreateUser", mock.Anything, mock.Anything).Return("", repository.ErrUsernameTaken).Once()
			},
			wantKind: apperr.ErrConflict,
			wantMsg:  auth.MsgUsernameTaken,
		},
		{
			name: "admin code without server secret",
			input: func() auth.RegisterInput {
				in := validInput()
				in.AdminCode = "letmein"
				return in
			},
			setupMocks: func(r *UserRepoMock) {
				r.On("CheckTaken", mock.Anything, "alice@example.com", "alice").Return(false, false, nil).Once()
			},
			wantKind: apperr.ErrForbidden,
			wantMsg:  auth.MsgAdminCodeMissing,
		},
		{
			name:      "wrong admin code",
			adminCode: "correct",
			input: func() auth.RegisterInput {
				in := validInput()
				in.AdminCode = "wrong"
				return in
			},
			setupMocks: func(r *UserRepoMock) {
				r.On("CheckTaken", mock.Anything, "alice@example.com", "alice").Return(false, false, nil).Once()
			},
			wantKind: apperr.ErrForbidden,
			wantMsg:  auth.MsgInvalidAdminCode,
		},
		{
			name:      "admin registration",
			adminCode: "correct",
			input: func() auth.RegisterInput {
				in := validInput()
				in.AdminCode = "correct"
				return in
			},
			setupMocks: func(r *UserRepoMock) {
				r.On("CheckTaken", mock.Anything, "alice@example.com", "alice").Return(false, false, nil).Once()
				r.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
					return u.IsAdmin
				})).Return("admin-1", nil).Once()
			},
			wantID: "admin-1",
		},
		{
			name:  "storage failure",
			input: validInput,
			setupMocks: func(r *UserRepoMock) {
				r.On("CheckTaken", mock.Anything, "alice@example.com", "alice").Return(false, false, errors.New("db down")).Once()
			},
			wantKind: apperr.ErrStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(UserRepoMock)
			if tt.setupMocks != nil {
				tt.setupMocks(users)
			}
			svc := newService(users, new(PictureStoreMock), tt.adminCode)

			id, err := svc.Register(context.Background(), tt.input())
			if tt.wantKind != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantKind)
				if tt.wantMsg != "" {
					assert.Equal(t, tt.wantMsg, apperr.Message(err, ""))
				}
				assert.Empty(t, id)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
			}
			users.AssertExpectations(t)
		})
	}
}

func TestService_Login(t *testing.T) {
	hash := hashed(t, strongPassword)

	tests := []struct {
		name     string
		user     *models.User
		repoErr  error
		password string
		wantKind error
		wantMsg  string
	}{
		{
			name:     "success",
			user:     &models.User{ID: "u1", Email: "a@b.c", PasswordHash: hash},
			password: strongPassword,
		},
		{
			name:     "unknown email",
			repoErr:  repository.ErrNotFound,
			password: strongPassword,
			wantKind: apperr.ErrNotFound,
			wantMsg:  auth.MsgInvalidCredentials,
		},
		{
			name:     "wrong password",
			user:     &models.User{ID: "u1", Email: "a@b.c", PasswordHash: hash},
			password: "other1!",
			wantKind: apperr.ErrInvalidCredential,
			wantMsg:  auth.MsgInvalidCredentials,
		},
		{
			name:     "suspended with correct password",
			user:     &models.User{ID: "u1", Email: "a@b.c", PasswordHash: hash, Flagged: true},
			password: strongPassword,
			wantKind: apperr.ErrSuspended,
			wantMsg:  auth.MsgSuspended,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(UserRepoMock)
			if tt.repoErr != nil {
				users.On("GetUserByEmail", mock.Anything, "a@b.c").Return(nil, tt.repoErr).Once()
			} else {
				users.On("GetUserByEmail", mock.Anything, "a@b.c").Return(tt.user, nil).Once()
			}
			svc := newService(users, new(PictureStoreMock), "")

			user, err := svc.Login(context.Background(), "a@b.c", tt.password)
			if tt.wantKind != nil {
				assert.Nil(t, user)
				assert.ErrorIs(t, err, tt.wantKind)
				assert.Equal(t, tt.wantMsg, apperr.Message(err, ""))
			} else {
				require.NoError(t, err)
				assert.Equal(t, "u1", user.ID)
			}
			users.AssertExpectations(t)
		})
	}
}

func TestService_Login_BlankFields(t *testing.T) {
	users := new(UserRepoMock)
	svc := newService(users, new(PictureStoreMock), "")

	_, err := svc.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredential)
	users.AssertNotCalled(t, "GetUserByEmail", mock.Anything, mock.Anything)
}

func TestService_AdminLogin(t *testing.T) {
	hash := hashed(t, strongPassword)

	t.Run("not admin", func(t *testing.T) {
		users := new(UserRepoMock)
		users.On("GetUserByEmail", mock.Anything, "a@b.c").
			Return(&models.User{ID: "u1", PasswordHash: hash}, nil).Once()
		svc := newService(users, new(PictureStoreMock), "")

		_, err := svc.AdminLogin(context.Background(), "a@b.c", strongPassword)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
		assert.Equal(t, auth.MsgNotAdmin, apperr.Message(err, ""))
	})

	t.Run("suspended admin", func(t *testing.T) {
		users := new(UserRepoMock)
		users.On("GetUserByEmail", mock.Anything, "a@b.c").
			Return(&models.User{ID: "u1", PasswordHash: hash, IsAdmin: true, Flagged: true}, nil).Once()
		svc := newService(users, new(PictureStoreMock), "")

		_, err := svc.AdminLogin(context.Background(), "a@b.c", strongPassword)
		assert.ErrorIs(t, err, apperr.ErrSuspended)
	})

	t.Run("admin", func(t *testing.T) {
		users := new(UserRepoMock)
		users.On("GetUserByEmail", mock.Anything, "a@b.c").
			Return(&models.User{ID: "u1", PasswordHash: hash, IsAdmin: true}, nil).Once()
		svc := newService(users, new(PictureStoreMock), "")

		user, err := svc.AdminLogin(context.Background(), "a@b.c", strongPassword)
		require.NoError(t, err)
		assert.True(t, user.IsAdmin)
	})
}

func TestService_UpdateProfile(t *testing.T) {
	current := func() *models.User {
		return &models.User{ID: "u1", Name: "Alice", Username: "alice", ProfilePicture: "https://cdn/profiles/u1/old.png"}
	}

	t.Run("username taken by another user", func(t *testing.T) {
		users := new(UserRepoMock)
		users.On("GetUser", mock.Anything, "u1").Return(current(), nil).Once()
		users.On("UsernameTakenByOther", mock.Anything, "bob", "u1").Return(true, nil).Once()
		svc := newService(users, new(PictureStoreMock), "")

		_, err := svc.UpdateProfile(context.Background(), "u1", auth.ProfileInput{Name: "Alice", Username: "bob"})
		assert.ErrorIs(t, err, apperr.ErrConflict)
		assert.Equal(t, auth.MsgUsernameTaken, apperr.Message(err, ""))
		users.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("same username skips uniqueness check", func(t *testing.T) {
		users := new(UserRepoMock)
		users.On("GetUser", mock.Anything, "u1").Return(current(), nil).Once()
		users.On("UpdateProfile", mock.Anything, "u1", "Alice B", "alice", "https://cdn/profiles/u1/old.png").Return(nil).Once()
		svc := newService(users, new(PictureStoreMock), "")

		user, err := svc.UpdateProfile(context.Background(), "u1", auth.ProfileInput{Name: "Alice B", Username: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "Alice B", user.Name)
		users.AssertExpectations(t)
	})

	t.Run("new picture replaces old one", func(t *testing.T) {
		users := new(UserRepoMock)
		pictures := new(PictureStoreMock)
		body := strings.NewReader("png")
		users.On("GetUser", mock.Anything, "u1").Return(current(), nil).Once()
		pictures.On("SaveProfilePicture", mock.Anything, "u1", body).Return("https://cdn/profiles/u1/new.png", nil).Once()
		users.On("UpdateProfile", mock.Anything, "u1", "Alice", "alice", "https://cdn/profiles/u1/new.png").Return(nil).Once()
		pictures.On("Delete", mock.Anything, "https://cdn/profiles/u1/old.png").Return(nil).Once()
		svc := newService(users, pictures, "")

		user, err := svc.UpdateProfile(context.Background(), "u1", auth.ProfileInput{Name: "Alice", Username: "alice", Picture: body})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/profiles/u1/new.png", user.ProfilePicture)
		users.AssertExpectations(t)
		pictures.AssertExpectations(t)
	})

	t.Run("failed update removes uploaded picture", func(t *testing.T) {
		users := new(UserRepoMock)
		pictures := new(PictureStoreMock)
		body := strings.NewReader("png")
		users.On("GetUser", mock.Anything, "u1").Return(current(), nil).Once()
		pictures.On("SaveProfilePicture", mock.Anything, "u1", body).Return("https://cdn/profiles/u1/new.png", nil).Once()
		users.On("UpdateProfile", mock.Anything, "u1", "Alice", "alice", "https://cdn/profiles/u1/new.png").
			Return(repository.ErrUsernameTaken).Once()
		pictures.On("Delete", mock.Anything, "https://cdn/profiles/u1/new.png").Return(nil).Once()
		svc := newService(users, pictures, "")

		_, err := svc.UpdateProfile(context.Background(), "u1", auth.ProfileInput{Name: "Alice", Username: "alice", Picture: body})
		assert.ErrorIs(t, err, apperr.ErrConflict)
		pictures.AssertExpectations(t)
		pictures.AssertNotCalled(t, "Delete", mock.Anything, "https://cdn/profiles/u1/old.png")
	})

	t.Run("failed update without upload deletes nothing", func(t *testing.T) {
		users := new(UserRepoMock)
		pictures := new(PictureStoreMock)
		users.On("GetUser", mock.Anything, "u1").Return(current(), nil).Once()
		users.On("UpdateProfile", mock.Anything, "u1", "Alice", "alice", "https://cdn/profiles/u1/old.png").
			Return(errors.New("db down")).Once()
		svc := newService(users, pictures, "")

		_, err := svc.UpdateProfile(context.Background(), "u1", auth.ProfileInput{Name: "Alice", Username: "alice"})
		assert.ErrorIs(t, err, apperr.ErrStorage)
		pictures.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("rejected picture keeps profile", func(t *testing.T) {
		users := new(UserRepoMock)
		pictures := new(PictureStoreMock)
		body := strings.NewReader("not an image")
		users.On("GetUser", mock.Anything, "u1").Return(current(), nil).Once()
		pictures.On("SaveProfilePicture", mock.Anything, "u1", body).
			Return("", apperr.Validation("Only image files are allowed")).Once()
		svc := newService(users, pictures, "")

		_, err := svc.UpdateProfile(context.Background(), "u1", auth.ProfileInput{Name: "Alice", Username: "alice", Picture: body})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		users.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_ChangePassword(t *testing.T) {
	hash := hashed(t, strongPassword)

	tests := []struct {
		name       string
		current    string
		newPass    string
		confirm    string
		wantMsg    string
		wantUpdate bool
	}{
		{name: "wrong current", current: "nope1!", newPass: "better2@", confirm: "better2@", wantMsg: auth.MsgCurrentPasswordWrong},
		{name: "mismatch", current: strongPassword, newPass: "better2@", confirm: "better3@", wantMsg: auth.MsgNewPasswordsMismatch},
		{name: "weak", current: strongPassword, newPass: "weak", confirm: "weak", wantMsg: auth.MsgNewPasswordWeak},
		{name: "success", current: strongPassword, newPass: "better2@", confirm: "better2@", wantUpdate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(UserRepoMock)
			users.On("GetUser", mock.Anything, "u1").Return(&models.User{ID: "u1", PasswordHash: hash}, nil).Once()
			if tt.wantUpdate {
				users.On("UpdatePassword", mock.Anything, "u1", mock.MatchedBy(func(h string) bool {
					return password.CompareHash(h, tt.newPass) == nil
				})).Return(nil).Once()
			}
			sessions := new(SessionsMock)
			if tt.wantUpdate {
				sessions.On("InvalidateUser", mock.Anything, "u1").Return(nil).Once()
			}
			svc := newServiceWithSessions(users, new(PictureStoreMock), sessions, "")

			err := svc.ChangePassword(context.Background(), "u1", tt.current, tt.newPass, tt.confirm)
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantMsg, apperr.Message(err, ""))
				sessions.AssertNotCalled(t, "InvalidateUser", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
			}
			users.AssertExpectations(t)
			sessions.AssertExpectations(t)
		})
	}
}
