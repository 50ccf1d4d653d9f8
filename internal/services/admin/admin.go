// Package admin реализует работу администратора: ответы на обращения,
// блокировку пользователей, правку учётных записей и сводку панели.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/password"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/storage/repository"
)

// Сообщения, которые видит администратор.
const (
	MsgBlankResponse      = "Response cannot be blank."
	MsgResponded          = "Query responded successfully!"
	MsgQueryNotFound      = "Query not found or already answered."
	MsgDashboardError     = "There was an error fetching query statistics."
	MsgSuspended          = "User has been suspended successfully."
	MsgUnsuspended        = "User has been unsuspended successfully."
	MsgUserNotFound       = "User not found"
	MsgUserUpdated        = "User updated successfully"
	MsgUserUpdateFailed   = "Error updating user"
	MsgNameRequired       = "Name and username are required"
	MsgUsernameTooShort   = "Username should be at least 3 characters"
	MsgUsernameTaken      = "Username is already taken"
	MsgPasswordPair       = "Please fill both password fields or leave both blank"
	MsgPasswordsMismatch  = "Passwords do not match"
	MsgPictureReset       = "Profile picture reset to default"
	MsgPictureNotAllowed  = "Profile picture can only be kept or reset to default"
	MsgInvalidStatusQuery = "Unknown query status"
)

// Repository описывает хранилище, с которым работает администратор.
type Repository interface {
	AnswerQuery(ctx context.Context, queryID, answer string) error
	ListQueries(ctx context.Context, status string) ([]models.Query, error)
	DashboardCounts(ctx context.Context) (models.Dashboard, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, onlyFlagged bool) ([]*models.User, error)
	SetFlagged(ctx context.Context, actorID *string, userID string, flagged bool, action string) (bool, error)
	AdminUpdateUser(ctx context.Context, actorID, userID string, upd models.UserUpdate) error
	ResetProfilePicture(ctx context.Context, userID string) error
	ListAudit(ctx context.Context, userID string) ([]models.UserAudit, error)
}

// SessionInvalidator завершает все сессии пользователя.
type SessionInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// PictureRemover удаляет загруженные изображения профиля.
type PictureRemover interface {
	Delete(ctx context.Context, path string) error
}

// EditUserInput поля формы правки пользователя.
type EditUserInput struct {
	Name            string `validate:"required"`
	Username        string `validate:"required,min=3"`
	ProfilePicture  string
	IsAdmin         bool
	Flagged         bool
	Password        string
	ConfirmPassword string
}

// Service операции администратора.
type Service struct {
	log      *slog.Logger
	repo     Repository
	sessions SessionInvalidator
	pictures PictureRemover
	validate *validator.Validate
	metrics  *metrics.Metrics
}

// New создаёт сервис администратора.
func New(log *slog.Logger, repo Repository, sessions SessionInvalidator, pictures PictureRemover, m *metrics.Metrics) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		sessions: sessions,
		pictures: pictures,
		validate: validator.New(),
		metrics:  m,
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Respond отвечает на обращение. Отвечать можно только на обращение в статусе Pending.
func (s *Service) Respond(ctx context.Context, queryID, answer string) error {
	const op = "services.admin.Respond"

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return apperr.Validation(MsgBlankResponse)
	}
	if !validID(queryID) {
		return apperr.New(apperr.ErrNotFound, MsgQueryNotFound)
	}

	err := s.repo.AnswerQuery(ctx, queryID, answer)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, MsgQueryNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	s.log.Info("query answered", slog.String("query_id", queryID))
	return nil
}

// ListQueries возвращает обращения; пустой status означает все.
func (s *Service) ListQueries(ctx context.Context, status string) ([]models.Query, error) {
	const op = "services.admin.ListQueries"

	switch status {
	case "", models.QueryPending, models.QueryAnswered:
	default:
		return nil, apperr.Validation(MsgInvalidStatusQuery)
	}
	queries, err := s.repo.ListQueries(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	return queries, nil
}

// Dashboard возвращает сводку. При сбое чтения возвращается нулевая сводка
// вместе с ошибкой, которую следует показать администратору.
func (s *Service) Dashboard(ctx context.Context) (models.Dashboard, error) {
	d, err := s.repo.DashboardCounts(ctx)
	if err != nil {
		s.log.Error("failed to fetch dashboard counts", sl.Err(err))
		return models.Dashboard{}, apperr.Wrap(apperr.ErrStorage, MsgDashboardError, err)
	}
	return d, nil
}

// Suspend блокирует пользователя и завершает его сессии.
// Повторная блокировка ничего не меняет и не пишется в журнал.
func (s *Service) Suspend(ctx context.Context, actorID, userID string) error {
	changed, err := s.setFlagged(ctx, "services.admin.Suspend", actorID, userID, true, models.AuditSuspend)
	if err != nil {
		return err
	}
	if changed {
		s.metrics.UserFlagged(models.AuditSuspend)
	}
	return nil
}

// Unsuspend снимает блокировку с пользователя.
func (s *Service) Unsuspend(ctx context.Context, actorID, userID string) error {
	_, err := s.setFlagged(ctx, "services.admin.Unsuspend", actorID, userID, false, models.AuditUnsuspend)
	return err
}

func (s *Service) setFlagged(ctx context.Context, op, actorID, userID string, flagged bool, action string) (bool, error) {
	if !validID(userID) {
		return false, apperr.New(apperr.ErrNotFound, MsgUserNotFound)
	}
	changed, err := s.repo.SetFlagged(ctx, &actorID, userID, flagged, action)
	if errors.Is(err, repository.ErrNotFound) {
		return false, apperr.Wrap(apperr.ErrNotFound, MsgUserNotFound, err)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	if changed {
		s.log.Info("user status changed", sl.UserID(userID),
			slog.String("actor_id", actorID), slog.String("action", action))
		s.invalidate(ctx, userID)
	}
	return changed, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.sessions.InvalidateUser(ctx, userID); err != nil {
		s.log.Error("failed to invalidate sessions", sl.Err(err), sl.UserID(userID))
	}
}

// GetUser возвращает пользователя по ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "services.admin.GetUser"

	if !validID(userID) {
		return nil, apperr.New(apperr.ErrNotFound, MsgUserNotFound)
	}
	u, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(apperr.ErrNotFound, MsgUserNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	return u, nil
}

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.listUsers(ctx, "services.admin.ListUsers", false)
}

// ListFlaggedUsers возвращает заблокированных пользователей.
func (s *Service) ListFlaggedUsers(ctx context.Context) ([]*models.User, error) {
	return s.listUsers(ctx, "services.admin.ListFlaggedUsers", true)
}

func (s *Service) listUsers(ctx context.Context, op string, onlyFlagged bool) ([]*models.User, error) {
	users, err := s.repo.ListUsers(ctx, onlyFlagged)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	return users, nil
}

// History возвращает журнал изменений статуса пользователя.
func (s *Service) History(ctx context.Context, userID string) ([]models.UserAudit, error) {
	const op = "services.admin.History"

	if !validID(userID) {
		return nil, apperr.New(apperr.ErrNotFound, MsgUserNotFound)
	}
	audit, err := s.repo.ListAudit(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	return audit, nil
}

// EditUser перезаписывает поля пользователя. Пароль меняется, только если
// заполнены оба поля; заполненное одно поле считается ошибкой. Изображение
// профиля принимается только текущее или по умолчанию; при сбросе
// загруженный файл удаляется.
func (s *Service) EditUser(ctx context.Context, actorID, userID string, in EditUserInput) error {
	const op = "services.admin.EditUser"

	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Tag() == "min" {
			return apperr.Validation(MsgUsernameTooShort)
		}
		return apperr.Validation(MsgNameRequired)
	}

	upd := models.UserUpdate{
		Name:     in.Name,
		Username: in.Username,
		IsAdmin:  in.IsAdmin,
		Flagged:  in.Flagged,
	}

	hasPassword := strings.TrimSpace(in.Password) != ""
	hasConfirm := strings.TrimSpace(in.ConfirmPassword) != ""
	if hasPassword || hasConfirm {
		if !hasPassword || !hasConfirm {
			return apperr.Validation(MsgPasswordPair)
		}
		if in.Password != in.ConfirmPassword {
			return apperr.Validation(MsgPasswordsMismatch)
		}
		if !password.IsStrong(in.Password) {
			return apperr.Validation(password.StrengthMessage)
		}
		hash, err := password.GetHash(in.Password)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		upd.PasswordHash = &hash
	}

	current, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	// Изображение можно оставить или сбросить; чужие пути не принимаются.
	upd.ProfilePicture = strings.TrimSpace(in.ProfilePicture)
	switch upd.ProfilePicture {
	case current.ProfilePicture:
	case "", models.DefaultProfilePicture:
		upd.ProfilePicture = models.DefaultProfilePicture
	default:
		return apperr.Validation(MsgPictureNotAllowed)
	}

	err = s.repo.AdminUpdateUser(ctx, actorID, userID, upd)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(apperr.ErrNotFound, MsgUserNotFound, err)
	case errors.Is(err, repository.ErrUsernameTaken):
		return apperr.Wrap(apperr.ErrConflict, MsgUsernameTaken, err)
	case err != nil:
		return fmt.Errorf("%s: %w", op, apperr.Wrap(apperr.ErrStorage, MsgUserUpdateFailed, err))
	}

	s.log.Info("user edited by admin", sl.UserID(userID), slog.String("actor_id", actorID),
		slog.Bool("password_changed", upd.PasswordHash != nil))
	if upd.ProfilePicture != current.ProfilePicture && current.ProfilePicture != models.DefaultProfilePicture {
		if err := s.pictures.Delete(ctx, current.ProfilePicture); err != nil {
			s.log.Warn("failed to delete profile picture", sl.Err(err), sl.UserID(userID))
		}
	}
	s.invalidate(ctx, userID)
	return nil
}

// ResetPicture возвращает изображение профиля по умолчанию и удаляет загруженное.
func (s *Service) ResetPicture(ctx context.Context, userID string) error {
	const op = "services.admin.ResetPicture"

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	err = s.repo.ResetProfilePicture(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, MsgUserNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	if u.ProfilePicture != models.DefaultProfilePicture {
		if err := s.pictures.Delete(ctx, u.ProfilePicture); err != nil {
			s.log.Warn("failed to delete profile picture", sl.Err(err), sl.UserID(userID))
		}
	}
	s.invalidate(ctx, userID)
	return nil
}
