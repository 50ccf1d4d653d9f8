// Package recovery реализует восстановление пароля по одноразовой ссылке.
//
// В базе хранится только SHA-256 токена. Ответ на запрос сброса не зависит
// от того, существует ли пользователь с указанной почтой.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/password"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/notify"
	"github.com/magabrotheeeer/ewaste-hub/internal/storage/repository"
)

// Сообщения, которые видит пользователь.
const (
	MsgRequestAccepted = "Password recovery instructions have been sent to your email if it exists in our system."
	MsgInvalidToken    = "Password reset link is invalid or has expired."
	MsgPasswordReset   = "Your password has been reset. You can now log in."
	MsgEmailRequired   = "Please enter your email"
)

// MailSubject тема письма со ссылкой сброса.
const MailSubject = "Password Recovery"

// TokenTTL срок действия ссылки сброса.
const TokenTTL = time.Hour

// UserRepository описывает доступ к токенам сброса в хранилище.
type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	ResetPasswordByToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
}

// Mailer ставит письмо в очередь отправки.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

// SessionInvalidator завершает все сессии пользователя.
type SessionInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// Service восстановление пароля.
type Service struct {
	log      *slog.Logger
	users    UserRepository
	mailer   Mailer
	sessions SessionInvalidator
	linkBase string
	now      func() time.Time
}

// New создаёт сервис. linkBase адрес страницы сброса без query-параметров.
func New(log *slog.Logger, users UserRepository, mailer Mailer, sessions SessionInvalidator, linkBase string) *Service {
	return &Service{
		log:      log,
		users:    users,
		mailer:   mailer,
		sessions: sessions,
		linkBase: linkBase,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestPasswordReset выпускает токен и отправляет ссылку, если пользователь существует.
// Ошибки хранилища и почты только логируются: результат для вызывающего всегда одинаковый.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "services.recovery.RequestPasswordReset"
	log := s.log.With(sl.Op(op))

	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation(MsgEmailRequired)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Error("failed to look up user", sl.Err(err))
		return nil
	}

	token, err := password.NewResetToken()
	if err != nil {
		log.Error("failed to generate reset token", sl.Err(err))
		return nil
	}
	expiry := s.now().Add(TokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, password.HashToken(token), expiry); err != nil {
		log.Error("failed to store reset token", sl.Err(err), sl.UserID(user.ID))
		return nil
	}

	link := s.linkBase + "?token=" + url.QueryEscape(token)
	if err := s.mailer.SendMail(ctx, user.Email, MailSubject, notify.ResetPasswordBody(link)); err != nil {
		log.Error("failed to queue reset email", sl.Err(err), sl.UserID(user.ID))
		return nil
	}
	log.Info("password reset requested", sl.UserID(user.ID))
	return nil
}

// ValidateResetToken проверяет, что токен существует и не истёк.
func (s *Service) ValidateResetToken(ctx context.Context, token string) error {
	const op = "services.recovery.ValidateResetToken"

	if token == "" {
		return apperr.New(apperr.ErrNotFound, MsgInvalidToken)
	}
	_, err := s.users.GetUserByResetToken(ctx, password.HashToken(token), s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, MsgInvalidToken, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	return nil
}

// ResetPassword устанавливает новый пароль и гасит токен одним запросом,
// поэтому один токен нельзя использовать дважды. Все сессии пользователя
// после этого завершаются.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "services.recovery.ResetPassword"

	if token == "" {
		return apperr.New(apperr.ErrNotFound, MsgInvalidToken)
	}
	if !password.IsStrong(newPassword) {
		return apperr.Validation(password.StrengthMessage)
	}

	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	userID, err := s.users.ResetPasswordByToken(ctx, password.HashToken(token), hash, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, MsgInvalidToken, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	if err := s.sessions.InvalidateUser(ctx, userID); err != nil {
		s.log.Error("failed to invalidate sessions", sl.Err(err), sl.UserID(userID))
	}
	s.log.Info("password reset completed", sl.UserID(userID))
	return nil
}
