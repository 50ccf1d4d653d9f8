package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ewaste-hub/internal/models"
)

// CreateReminder сохраняет запланированное напоминание.
func (s *Storage) CreateReminder(ctx context.Context, r models.Reminder) (models.Reminder, error) {
	const op = "storage.CreateReminder"
	select {
	case <-ctx.Done():
		return r, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO reminders (user_id, message, datetime)
			  VALUES ($1, $2, $3)
			  RETURNING id, created_at`
	if err := s.DB.QueryRowContext(ctx, query, r.UserID, r.Message, r.Datetime).
		Scan(&r.ID, &r.CreatedAt); err != nil {
		return r, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

// ListRemindersByUser возвращает напоминания пользователя по возрастанию времени.
func (s *Storage) ListRemindersByUser(ctx context.Context, userID string) ([]models.Reminder, error) {
	const op = "storage.ListRemindersByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, message, datetime, fired_at, created_at
			  FROM reminders
			  WHERE user_id = $1
			  ORDER BY datetime`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Reminder
	for rows.Next() {
		var r models.Reminder
		var firedAt sql.NullTime
		if err = rows.Scan(&r.ID, &r.UserID, &r.Message, &r.Datetime, &firedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if firedAt.Valid {
			r.FiredAt = &firedAt.Time
		}
		result = append(result, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteReminder удаляет напоминание владельца. Чужое и несуществующее
// напоминание неразличимы: в обоих случаях ErrNotFound.
func (s *Storage) DeleteReminder(ctx context.Context, userID, reminderID string) error {
	const op = "storage.DeleteReminder"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1 AND user_id = $2`, reminderID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireAffected(op, res)
}

// ClaimDueReminders помечает наступившие напоминания отправленными и возвращает их.
// Строки, захваченные другим экземпляром планировщика, пропускаются.
func (s *Storage) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]models.DueReminder, error) {
	const op = "storage.ClaimDueReminders"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH due AS (
			      SELECT id FROM reminders
			      WHERE fired_at IS NULL AND datetime <= $1
			      ORDER BY datetime
			      LIMIT $2
			      FOR UPDATE SKIP LOCKED
			  )
			  UPDATE reminders r
			  SET fired_at = $1
			  FROM due, users u
			  WHERE r.id = due.id AND u.id = r.user_id
			  RETURNING r.id, r.user_id, u.email, u.username, r.message, r.datetime, r.fired_at`
	rows, err := s.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.DueReminder
	for rows.Next() {
		var r models.DueReminder
		if err = rows.Scan(&r.ID, &r.UserID, &r.Email, &r.Username, &r.Message, &r.Datetime, &r.FiredAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ReleaseReminder снимает отметку об отправке, если она не менялась с момента захвата.
func (s *Storage) ReleaseReminder(ctx context.Context, reminderID string, firedAt time.Time) error {
	const op = "storage.ReleaseReminder"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	_, err := s.DB.ExecContext(ctx,
		`UPDATE reminders SET fired_at = NULL WHERE id = $1 AND fired_at = $2`, reminderID, firedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
