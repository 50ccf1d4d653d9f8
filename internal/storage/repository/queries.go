package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ewaste-hub/internal/models"
)

// AbuseRule параметры автоматической блокировки: не больше Threshold обращений
// за скользящее окно Window до текущего.
type AbuseRule struct {
	Threshold int
	Window    time.Duration
}

// CreateQueryWithAbuseCheck сохраняет обращение и при превышении порога блокирует автора.
// Строка пользователя блокируется на время транзакции, поэтому параллельные обращения
// одного пользователя считаются последовательно и блокировка не теряется.
func (s *Storage) CreateQueryWithAbuseCheck(ctx context.Context, userID, question string,
	rule AbuseRule, now time.Time) (models.QuerySubmitResult, error) {
	const op = "storage.CreateQueryWithAbuseCheck"
	var result models.QuerySubmitResult
	select {
	case <-ctx.Done():
		return result, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	var flagged bool
	err = tx.QueryRowContext(ctx, `SELECT flagged FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&flagged)
	if errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}

	var recent int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queries WHERE user_id = $1 AND created_at >= $2`,
		userID, now.Add(-rule.Window)).Scan(&recent)
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}

	result.OverLimit = recent >= rule.Threshold
	if result.OverLimit && !flagged {
		if _, err = tx.ExecContext(ctx, `UPDATE users SET flagged = TRUE WHERE id = $1`, userID); err != nil {
			return result, fmt.Errorf("%s: %w", op, err)
		}
		if err = insertAudit(ctx, tx, userID, nil, models.AuditAutoFlag); err != nil {
			return result, fmt.Errorf("%s: %w", op, err)
		}
		result.NewlyFlagged = true
	}

	q := models.Query{
		UserID:    userID,
		Question:  question,
		Status:    models.QueryPending,
		CreatedAt: now,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO queries (user_id, question, status, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		userID, question, models.QueryPending, now).Scan(&q.ID)
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	result.Query = q
	return result, nil
}

// ListQueriesByUser возвращает обращения пользователя, новые первыми.
func (s *Storage) ListQueriesByUser(ctx context.Context, userID string) ([]models.Query, error) {
	const op = "storage.ListQueriesByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT q.id, q.user_id, q.question, q.answer, q.status, q.created_at, u.username, u.email
			  FROM queries q JOIN users u ON u.id = q.user_id
			  WHERE q.user_id = $1
			  ORDER BY q.created_at DESC`
	return s.listQueries(ctx, op, query, userID)
}

// ListQueries возвращает все обращения; непустой status ограничивает выборку.
func (s *Storage) ListQueries(ctx context.Context, status string) ([]models.Query, error) {
	const op = "storage.ListQueries"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT q.id, q.user_id, q.question, q.answer, q.status, q.created_at, u.username, u.email
			  FROM queries q JOIN users u ON u.id = q.user_id
			  WHERE ($1 = '' OR q.status = $1)
			  ORDER BY q.created_at DESC`
	return s.listQueries(ctx, op, query, status)
}

func (s *Storage) listQueries(ctx context.Context, op, query string, arg string) ([]models.Query, error) {
	rows, err := s.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Query
	for rows.Next() {
		var q models.Query
		var answer sql.NullString
		if err = rows.Scan(&q.ID, &q.UserID, &q.Question, &answer, &q.Status, &q.CreatedAt,
			&q.Username, &q.Email); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if answer.Valid {
			q.Answer = &answer.String
		}
		result = append(result, q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// AnswerQuery переводит обращение из Pending в Answered с текстом ответа.
// Отсутствующее или уже отвеченное обращение возвращает ErrNotFound.
func (s *Storage) AnswerQuery(ctx context.Context, queryID, answer string) error {
	const op = "storage.AnswerQuery"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE queries
			  SET status = 'Answered', answer = $1
			  WHERE id = $2 AND status = 'Pending'`
	res, err := s.DB.ExecContext(ctx, query, answer, queryID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireAffected(op, res)
}

// DashboardCounts считает сводку для панели администратора одним запросом.
func (s *Storage) DashboardCounts(ctx context.Context) (models.Dashboard, error) {
	const op = "storage.DashboardCounts"
	var d models.Dashboard
	select {
	case <-ctx.Done():
		return d, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT
			      (SELECT COUNT(*) FROM queries),
			      (SELECT COUNT(*) FROM queries WHERE status = 'Answered'),
			      (SELECT COUNT(*) FROM queries WHERE status = 'Pending'),
			      (SELECT COUNT(*) FROM users WHERE flagged = TRUE),
			      (SELECT COUNT(*) FROM users)`
	if err := s.DB.QueryRowContext(ctx, query).Scan(&d.TotalQueries, &d.AnsweredQueries,
		&d.PendingQueries, &d.FlaggedUsers, &d.TotalUsers); err != nil {
		return models.Dashboard{}, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}
