package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ewaste-hub/internal/models"
)

const userColumns = `id, name, username, email, password_hash, is_admin, flagged,
			      profile_picture, reset_token_hash, reset_token_expiry, date_joined`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var tokenHash sql.NullString
	var tokenExpiry sql.NullTime
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.PasswordHash,
		&u.IsAdmin, &u.Flagged, &u.ProfilePicture, &tokenHash, &tokenExpiry, &u.DateJoined); err != nil {
		return nil, err
	}
	if tokenHash.Valid {
		u.ResetTokenHash = &tokenHash.String
	}
	if tokenExpiry.Valid {
		u.ResetTokenExpiry = &tokenExpiry.Time
	}
	return u, nil
}

// CreateUser сохраняет нового пользователя и возвращает его ID.
// Нарушение уникальности email или username возвращается как ErrEmailTaken / ErrUsernameTaken.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID string
	query := `INSERT INTO users (name, username, email, password_hash, is_admin, profile_picture)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query,
		user.Name, user.Username, user.Email, user.PasswordHash, user.IsAdmin,
		user.ProfilePicture).Scan(&newID); err != nil {
		return "", fmt.Errorf("%s: %w", op, mapUniqueViolation(err))
	}
	return newID, nil
}

// CheckTaken сообщает, заняты ли email и username.
func (s *Storage) CheckTaken(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error) {
	const op = "storage.CheckTaken"
	select {
	case <-ctx.Done():
		return false, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT
			      EXISTS (SELECT 1 FROM users WHERE email = $1),
			      EXISTS (SELECT 1 FROM users WHERE username = $2)`
	if err = s.DB.QueryRowContext(ctx, query, email, username).Scan(&emailTaken, &usernameTaken); err != nil {
		return false, false, fmt.Errorf("%s: %w", op, err)
	}
	return emailTaken, usernameTaken, nil
}

// UsernameTakenByOther проверяет, занят ли username кем-то кроме пользователя excludeID.
func (s *Storage) UsernameTakenByOther(ctx context.Context, username, excludeID string) (bool, error) {
	const op = "storage.UsernameTakenByOther"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var taken bool
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id <> $2)`
	if err := s.DB.QueryRowContext(ctx, query, username, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return taken, nil
}

// GetUserByEmail возвращает пользователя по email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "storage.GetUserByEmail", "email", email)
}

// GetUser возвращает пользователя по ID.
func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "storage.GetUser", "id", id)
}

func (s *Storage) getUser(ctx context.Context, op, column, value string) (*models.User, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// ListUsers возвращает пользователей; при onlyFlagged только заблокированных.
func (s *Storage) ListUsers(ctx context.Context, onlyFlagged bool) ([]*models.User, error) {
	const op = "storage.ListUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users
			  WHERE ($1 = FALSE OR flagged = TRUE)
			  ORDER BY date_joined DESC`
	rows, err := s.DB.QueryContext(ctx, query, onlyFlagged)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SetResetToken сохраняет хэш токена сброса пароля и срок его действия.
func (s *Storage) SetResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error {
	const op = "storage.SetResetToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET reset_token_hash = $1, reset_token_expiry = $2
			  WHERE id = $3`
	if _, err := s.DB.ExecContext(ctx, query, tokenHash, expiry, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetUserByResetToken возвращает владельца действующего токена сброса.
func (s *Storage) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	const op = "storage.GetUserByResetToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users
			  WHERE reset_token_hash = $1 AND reset_token_expiry > $2`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, tokenHash, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// ResetPasswordByToken одним запросом устанавливает новый хэш пароля и гасит токен.
// Если действующего токена нет, возвращается ErrNotFound.
func (s *Storage) ResetPasswordByToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	const op = "storage.ResetPasswordByToken"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var userID string
	query := `UPDATE users
			  SET password_hash = $1, reset_token_hash = NULL, reset_token_expiry = NULL
			  WHERE reset_token_hash = $2 AND reset_token_expiry > $3
			  RETURNING id`
	err := s.DB.QueryRowContext(ctx, query, passwordHash, tokenHash, now).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return userID, nil
}

// UpdatePassword перезаписывает хэш пароля пользователя.
func (s *Storage) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	const op = "storage.UpdatePassword"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireAffected(op, res)
}

// UpdateProfile обновляет имя, username и изображение профиля.
func (s *Storage) UpdateProfile(ctx context.Context, userID, name, username, picture string) error {
	const op = "storage.UpdateProfile"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET name = $1, username = $2, profile_picture = $3
			  WHERE id = $4`
	res, err := s.DB.ExecContext(ctx, query, name, username, picture, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapUniqueViolation(err))
	}
	return requireAffected(op, res)
}

// ResetProfilePicture возвращает изображение профиля по умолчанию.
func (s *Storage) ResetProfilePicture(ctx context.Context, userID string) error {
	const op = "storage.ResetProfilePicture"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `UPDATE users SET profile_picture = $1 WHERE id = $2`,
		models.DefaultProfilePicture, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireAffected(op, res)
}

// SetFlagged переводит пользователя в состояние flagged и пишет запись журнала,
// если состояние действительно изменилось. Возвращает признак изменения.
func (s *Storage) SetFlagged(ctx context.Context, actorID *string, userID string, flagged bool, action string) (bool, error) {
	const op = "storage.SetFlagged"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	var current bool
	err = tx.QueryRowContext(ctx, `SELECT flagged FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if current == flagged {
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `UPDATE users SET flagged = $1 WHERE id = $2`, flagged, userID); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = insertAudit(ctx, tx, userID, actorID, action); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// AdminUpdateUser перезаписывает поля пользователя и пишет запись журнала admin_edit.
func (s *Storage) AdminUpdateUser(ctx context.Context, actorID, userID string, upd models.UserUpdate) error {
	const op = "storage.AdminUpdateUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer rollback(tx)

	query := `UPDATE users
			  SET name = $1, username = $2, profile_picture = $3, is_admin = $4, flagged = $5,
			      password_hash = COALESCE($6, password_hash)
			  WHERE id = $7`
	res, err := tx.ExecContext(ctx, query, upd.Name, upd.Username, upd.ProfilePicture,
		upd.IsAdmin, upd.Flagged, upd.PasswordHash, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapUniqueViolation(err))
	}
	if err = requireAffected(op, res); err != nil {
		return err
	}
	if err = insertAudit(ctx, tx, userID, &actorID, models.AuditAdminEdit); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListAudit возвращает журнал изменений статуса пользователя, новые записи первыми.
func (s *Storage) ListAudit(ctx context.Context, userID string) ([]models.UserAudit, error) {
	const op = "storage.ListAudit"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, actor_id, action, created_at
			  FROM user_audit
			  WHERE user_id = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.UserAudit
	for rows.Next() {
		var a models.UserAudit
		var actor sql.NullString
		if err = rows.Scan(&a.ID, &a.UserID, &actor, &a.Action, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if actor.Valid {
			a.ActorID = &actor.String
		}
		result = append(result, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, db execer, userID string, actorID *string, action string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_audit (user_id, actor_id, action) VALUES ($1, $2, $3)`,
		userID, actorID, action)
	return err
}

func requireAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
