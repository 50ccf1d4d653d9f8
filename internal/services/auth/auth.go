// Package auth содержит регистрацию, вход пользователей и администраторов,
// а также изменение профиля и пароля.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/password"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/storage/repository"
)

// Сообщения, которые видит пользователь.
const (
	MsgFillAllFields        = "Please fill in all fields"
	MsgUsernameTooShort     = "Username should be at least 3 characters"
	MsgInvalidEmail         = "Please enter a valid email address"
	MsgPasswordsMismatch    = "Passwords do not match"
	MsgBothTaken            = "Both email and username are already taken"
	MsgEmailTaken           = "Email is already registered"
	MsgUsernameTaken        = "Username is already taken"
	MsgUserExists           = "User already exists"
	MsgAdminCodeMissing     = "Admin code is not configured on the server"
	MsgInvalidAdminCode     = "Invalid admin code"
	MsgInvalidCredentials   = "Invalid email or password"
	MsgSuspended            = "Your account has been suspended."
	MsgNotAdmin             = "You do not have admin privileges"
	MsgCurrentPasswordWrong = "Current password is incorrect"
	MsgNewPasswordsMismatch = "New passwords do not match"
	MsgNewPasswordWeak      = "New password must be at least 6 characters and contain at least 1 number and 1 special character"
	MsgUserNotFound         = "User not found"
)

// Результаты входа для метрик.
const (
	LoginOK        = "ok"
	LoginNotFound  = "not_found"
	LoginInvalid   = "invalid"
	LoginSuspended = "suspended"
	LoginForbidden = "forbidden"
)

// UserRepository описывает доступ к пользователям в хранилище.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (string, error)
	CheckTaken(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UsernameTakenByOther(ctx context.Context, username, excludeID string) (bool, error)
	UpdateProfile(ctx context.Context, userID, name, username, picture string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// PictureStore сохраняет и удаляет изображения профиля.
type PictureStore interface {
	SaveProfilePicture(ctx context.Context, userID string, r io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
}

// SessionInvalidator завершает все сессии пользователя.
type SessionInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// RegisterInput данные формы регистрации.
type RegisterInput struct {
	Name      string `validate:"required"`
	Username  string `validate:"required,min=3"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required"`
	Password2 string `validate:"required"`
	AdminCode string
}

// ProfileInput данные формы изменения профиля. Picture == nil, если файл не передан.
type ProfileInput struct {
	Name     string
	Username string
	Picture  io.Reader
}

// Service реализует операции учётных записей.
type Service struct {
	log       *slog.Logger
	users     UserRepository
	pictures  PictureStore
	sessions  SessionInvalidator
	adminCode string
	validate  *validator.Validate
	metrics   *metrics.Metrics
}

// New создаёт сервис. adminCode пустой, если регистрация администраторов отключена.
func New(log *slog.Logger, users UserRepository, pictures PictureStore, sessions SessionInvalidator,
	adminCode string, m *metrics.Metrics) *Service {
	return &Service{
		log:       log,
		users:     users,
		pictures:  pictures,
		sessions:  sessions,
		adminCode: adminCode,
		validate:  validator.New(),
		metrics:   m,
	}
}

// Register проверяет форму и создаёт пользователя. Возвращает ID нового пользователя.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	const op = "services.auth.Register"

	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := s.checkRegisterInput(in); err != nil {
		return "", err
	}

	emailTaken, usernameTaken, err := s.users.CheckTaken(ctx, in.Email, in.Username)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	if err := takenError(emailTaken, usernameTaken); err != nil {
		return "", err
	}

	isAdmin := false
	if in.AdminCode != "" {
		if s.adminCode == "" {
			return "", apperr.New(apperr.ErrForbidden, MsgAdminCodeMissing)
		}
		if in.AdminCode != s.adminCode {
			return "", apperr.New(apperr.ErrForbidden, MsgInvalidAdminCode)
		}
		isAdmin = true
	}

	hash, err := password.GetHash(in.Password)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.users.CreateUser(ctx, models.User{
		Name:           in.Name,
		Username:       in.Username,
		Email:          in.Email,
		PasswordHash:   hash,
		IsAdmin:        isAdmin,
		ProfilePicture: models.DefaultProfilePicture,
	})
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return "", apperr.Wrap(apperr.ErrConflict, MsgEmailTaken, err)
	case errors.Is(err, repository.ErrUsernameTaken):
		return "", apperr.Wrap(apperr.ErrConflict, MsgUsernameTaken, err)
	case errors.Is(err, repository.ErrDuplicate):
		return "", apperr.Wrap(apperr.ErrConflict, MsgUserExists, err)
	case err != nil:
		return "", fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}

	s.log.Info("user registered", slog.String("user_id", id), slog.Bool("is_admin", isAdmin))
	return id, nil
}

func (s *Service) checkRegisterInput(in RegisterInput) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.Validation(MsgFillAllFields)
		}
		// пустые поля важнее остальных ошибок
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return apperr.Validation(MsgFillAllFields)
			}
		}
		switch verrs[0].Tag() {
		case "min":
			return apperr.Validation(MsgUsernameTooShort)
		case "email":
			return apperr.Validation(MsgInvalidEmail)
		default:
			return apperr.Validation(MsgFillAllFields)
		}
	}
	if in.Password != in.Password2 {
		return apperr.Validation(MsgPasswordsMismatch)
	}
	if !password.IsStrong(in.Password) {
		return apperr.Validation(password.StrengthMessage)
	}
	return nil
}

func takenError(emailTaken, usernameTaken bool) error {
	switch {
	case emailTaken && usernameTaken:
		return apperr.New(apperr.ErrConflict, MsgBothTaken)
	case emailTaken:
		return apperr.New(apperr.ErrConflict, MsgEmailTaken)
	case usernameTaken:
		return apperr.New(apperr.ErrConflict, MsgUsernameTaken)
	}
	return nil
}

// Login проверяет учётные данные. Заблокированный пользователь не входит
// даже с верным паролем.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (*models.User, error) {
	user, err := s.authenticate(ctx, "services.auth.Login", email, rawPassword)
	if err != nil {
		return nil, err
	}
	s.metrics.Login(LoginOK)
	return user, nil
}

// AdminLogin как Login, но дополнительно требует прав администратора.
func (s *Service) AdminLogin(ctx context.Context, email, rawPassword string) (*models.User, error) {
	user, err := s.authenticate(ctx, "services.auth.AdminLogin", email, rawPassword)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		s.metrics.Login(LoginForbidden)
		return nil, apperr.New(apperr.ErrForbidden, MsgNotAdmin)
	}
	s.metrics.Login(LoginOK)
	return user, nil
}

func (s *Service) authenticate(ctx context.Context, op, email, rawPassword string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || rawPassword == "" {
		s.metrics.Login(LoginInvalid)
		return nil, apperr.New(apperr.ErrInvalidCredential, MsgInvalidCredentials)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.Login(LoginNotFound)
		return nil, apperr.Wrap(apperr.ErrNotFound, MsgInvalidCredentials, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}

	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		s.metrics.Login(LoginInvalid)
		return nil, apperr.Wrap(apperr.ErrInvalidCredential, MsgInvalidCredentials, err)
	}
	if user.Flagged {
		s.metrics.Login(LoginSuspended)
		s.log.Info("login rejected for suspended user", slog.String("user_id", user.ID))
		return nil, apperr.New(apperr.ErrSuspended, MsgSuspended)
	}
	return user, nil
}

// GetUser возвращает пользователя по ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "services.auth.GetUser"

	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(apperr.ErrNotFound, MsgUserNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	return user, nil
}

// UpdateProfile меняет имя, имя пользователя и, если передан файл, изображение профиля.
// Старое изображение удаляется после успешного сохранения нового.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	const op = "services.auth.UpdateProfile"

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = user.Name
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = user.Username
	}
	if len(username) < 3 {
		return nil, apperr.Validation(MsgUsernameTooShort)
	}

	if username != user.Username {
		taken, err := s.users.UsernameTakenByOther(ctx, username, userID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
		}
		if taken {
			return nil, apperr.New(apperr.ErrConflict, MsgUsernameTaken)
		}
	}

	picture := user.ProfilePicture
	if in.Picture != nil {
		picture, err = s.pictures.SaveProfilePicture(ctx, userID, in.Picture)
		if err != nil {
			return nil, err
		}
	}

	err = s.users.UpdateProfile(ctx, userID, name, username, picture)
	if err != nil && picture != user.ProfilePicture {
		if derr := s.pictures.Delete(ctx, picture); derr != nil {
			s.log.Warn("failed to delete unused profile picture", sl.Err(derr), slog.String("user_id", userID))
		}
	}
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		return nil, apperr.Wrap(apperr.ErrConflict, MsgUsernameTaken, err)
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Wrap(apperr.ErrNotFound, MsgUserNotFound, err)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}

	if picture != user.ProfilePicture && user.ProfilePicture != models.DefaultProfilePicture {
		if err := s.pictures.Delete(ctx, user.ProfilePicture); err != nil {
			s.log.Warn("failed to delete old profile picture", sl.Err(err), slog.String("user_id", userID))
		}
	}

	user.Name = name
	user.Username = username
	user.ProfilePicture = picture
	return user, nil
}

// ChangePassword меняет пароль после проверки текущего и завершает все
// сессии пользователя. Текущую сессию вызывающий перевыпускает сам.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error {
	const op = "services.auth.ChangePassword"

	if current == "" || newPassword == "" || confirm == "" {
		return apperr.Validation(MsgFillAllFields)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := password.CompareHash(user.PasswordHash, current); err != nil {
		return apperr.Wrap(apperr.ErrInvalidCredential, MsgCurrentPasswordWrong, err)
	}
	if newPassword != confirm {
		return apperr.Validation(MsgNewPasswordsMismatch)
	}
	if !password.IsStrong(newPassword) {
		return apperr.Validation(MsgNewPasswordWeak)
	}

	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	if err := s.sessions.InvalidateUser(ctx, userID); err != nil {
		s.log.Error("failed to invalidate sessions", sl.Err(err), slog.String("user_id", userID))
	}
	s.log.Info("password changed", slog.String("user_id", userID))
	return nil
}
