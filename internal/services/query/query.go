// Package query принимает обращения пользователей к администраторам
// и автоматически блокирует авторов, превысивших частоту обращений.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/apperr"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
	"github.com/magabrotheeeer/ewaste-hub/internal/storage/repository"
)

// Сообщения, которые видит пользователь.
const (
	MsgBlankQuestion = "Question cannot be blank."
	MsgOverLimit     = "You have been flagged for sending too many queries in a short time."
	MsgCreated       = "Query created successfully!"
)

// Repository описывает хранилище обращений.
type Repository interface {
	CreateQueryWithAbuseCheck(ctx context.Context, userID, question string,
		rule repository.AbuseRule, now time.Time) (models.QuerySubmitResult, error)
	ListQueriesByUser(ctx context.Context, userID string) ([]models.Query, error)
}

// SessionInvalidator завершает все сессии пользователя.
type SessionInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// Service приём обращений.
type Service struct {
	log      *slog.Logger
	repo     Repository
	sessions SessionInvalidator
	rule     repository.AbuseRule
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New создаёт сервис с порогом threshold обращений за окно window.
func New(log *slog.Logger, repo Repository, sessions SessionInvalidator,
	threshold int, window time.Duration, m *metrics.Metrics) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		sessions: sessions,
		rule:     repository.AbuseRule{Threshold: threshold, Window: window},
		metrics:  m,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit сохраняет обращение. Обращение сверх порога тоже сохраняется,
// а автор блокируется; об этом сообщает OverLimit в результате.
func (s *Service) Submit(ctx context.Context, userID, question string) (models.QuerySubmitResult, error) {
	const op = "services.query.Submit"

	question = strings.TrimSpace(question)
	if question == "" {
		return models.QuerySubmitResult{}, apperr.Validation(MsgBlankQuestion)
	}

	res, err := s.repo.CreateQueryWithAbuseCheck(ctx, userID, question, s.rule, s.now().UTC())
	if err != nil {
		return models.QuerySubmitResult{}, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	s.metrics.QuerySubmitted()

	if res.NewlyFlagged {
		s.metrics.UserFlagged(models.AuditAutoFlag)
		s.log.Warn("user flagged for query rate", sl.UserID(userID),
			slog.Int("threshold", s.rule.Threshold), slog.Duration("window", s.rule.Window))
		if err := s.sessions.InvalidateUser(ctx, userID); err != nil {
			s.log.Error("failed to invalidate sessions", sl.Err(err), sl.UserID(userID))
		}
	}
	return res, nil
}

// ListMine возвращает обращения пользователя.
func (s *Service) ListMine(ctx context.Context, userID string) ([]models.Query, error) {
	const op = "services.query.ListMine"

	queries, err := s.repo.ListQueriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.Storage(err))
	}
	return queries, nil
}
