// Package reminder проверяет и сохраняет напоминания пользователей.
// Отправкой наступивших напоминаний занимается процесс reminder-scheduler.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/storage/repository"
)

// Сообщения, которые видит пользователь.
const (
	MsgBlankFields   = "Message and date/time cannot be blank."
	MsgInvalidDate   = "Invalid date format."
	MsgPastDate      = "Reminder date cannot be in the past."
	msgHorizonFormat = "Reminder date cannot be beyond year %d."
	MsgCreated       = "Reminder created successfully!"
	MsgNotFound      = "Reminder not found or you do not have permission to delete it."
	MsgDeleted       = "Reminder deleted successfully!"
	MsgCreateFailed  = "There was an error creating your reminder."
	MsgListFailed    = "There was an error retrieving your reminders."
	MsgDeleteFailed  = "There was an error deleting the reminder."
)

// Форматы даты и времени из формы. Значения без часового пояса считаются UTC.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// Repository описывает хранилище напоминаний.
type Repository interface {
	CreateReminder(ctx context.Context, r models.Reminder) (models.Reminder, error)
	ListRemindersByUser(ctx context.Context, userID string) ([]models.Reminder, error)
	DeleteReminder(ctx context.Context, userID, reminderID string) error
}

// Service напоминания пользователей.
type Service struct {
	log     *slog.Logger
	repo    Repository
	horizon time.Time
	now     func() time.Time
}

// New создаёт сервис. Напоминания позже horizon отклоняются.
func New(log *slog.Logger, repo Repository, horizon time.Time) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		horizon: horizon,
		now:     time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ParseDatetime разбирает дату из формы.
func ParseDatetime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Create проверяет и сохраняет напоминание в состоянии «запланировано».
func (s *Service) Create(ctx context.Context, userID, message, datetime string) (models.Reminder, error) {
	const op = "services.reminder.Create"

	message = strings.TrimSpace(message)
	datetime = strings.TrimSpace(datetime)
	if message == "" || datetime == "" {
		return models.Reminder{}, apperr.Validation(MsgBlankFields)
	}

	at, err := ParseDatetime(datetime)
	if err != nil {
		return models.Reminder{}, apperr.Wrap(apperr.ErrValidation, MsgInvalidDate, err)
	}
	if at.Before(s.now()) {
		return models.Reminder{}, apperr.New(apperr.ErrPastDate, MsgPastDate)
	}
	if at.After(s.horizon) {
		return models.Reminder{}, apperr.New(apperr.ErrHorizonExceeded, fmt.Sprintf(msgHorizonFormat, s.horizon.Year()))
	}

	r, err := s.repo.CreateReminder(ctx, models.Reminder{
		UserID:   userID,
		Message:  message,
		Datetime: at,
	})
	if err != nil {
		return models.Reminder{}, fmt.Errorf("%s: %w", op, apperr.Wrap(apperr.ErrStorage, MsgCreateFailed, err))
	}
	s.log.Debug("reminder created", sl.UserID(userID), slog.String("reminder_id", r.ID),
		slog.Time("datetime", at))
	return r, nil
}

// ListMine возвращает напоминания пользователя.
func (s *Service) ListMine(ctx context.Context, userID string) ([]models.Reminder, error) {
	const op = "services.reminder.ListMine"

	reminders, err := s.repo.ListRemindersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Wrap(apperr.ErrStorage, MsgListFailed, err))
	}
	return reminders, nil
}

// Delete удаляет напоминание пользователя. Чужое, отсутствующее и
// некорректно заданное напоминание дают одну и ту же ошибку.
func (s *Service) Delete(ctx context.Context, userID, reminderID string) error {
	const op = "services.reminder.Delete"

	if _, err := uuid.Parse(reminderID); err != nil {
		return apperr.New(apperr.ErrNotFound, MsgNotFound)
	}
	err := s.repo.DeleteReminder(ctx, userID, reminderID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, MsgNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, apperr.Wrap(apperr.ErrStorage, MsgDeleteFailed, err))
	}
	return nil
}
