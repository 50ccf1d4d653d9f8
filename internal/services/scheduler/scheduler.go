// Package scheduler периодически захватывает наступившие напоминания
// и публикует их в очередь уведомлений.
//
// Захват выполняется в базе (fired_at), поэтому перезапуск процесса или
// несколько экземпляров планировщика не приводят к потере или дублированию
// срабатываний. Если публикация не удалась, захват снимается и напоминание
// будет взято на следующем тике.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
)

// ReminderRepository захват и освобождение напоминаний.
type ReminderRepository interface {
	ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]models.DueReminder, error)
	ReleaseReminder(ctx context.Context, reminderID string, firedAt time.Time) error
}

// Publisher ставит напоминание в очередь.
type Publisher interface {
	PublishReminder(ctx context.Context, r models.DueReminder) error
}

// Service планировщик напоминаний.
type Service struct {
	repo      ReminderRepository
	publisher Publisher
	log       *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// New создаёт планировщик, который раз в interval забирает до batchSize напоминаний.
func New(repo ReminderRepository, publisher Publisher, log *slog.Logger, m *metrics.Metrics,
	interval time.Duration, batchSize int) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       log,
		metrics:   m,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run выполняет тики до отмены ctx.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("reminder scheduler started", slog.Duration("interval", s.interval), slog.Int("batch_size", s.batchSize))
	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick захватывает наступившие напоминания пачками, пока они не закончатся.
// Возвращает число опубликованных напоминаний.
func (s *Service) Tick(ctx context.Context) int {
	published := 0
	for {
		if ctx.Err() != nil {
			return published
		}
		// Postgres хранит микросекунды; fired_at должен совпасть при освобождении.
		now := s.now().UTC().Truncate(time.Microsecond)
		due, err := s.repo.ClaimDueReminders(ctx, now, s.batchSize)
		if err != nil {
			s.log.Error("failed to claim due reminders", sl.Err(err))
			return published
		}
		if len(due) == 0 {
			return published
		}
		s.log.Info("claimed due reminders", slog.Int("count", len(due)))

		failed := 0
		for _, r := range due {
			if s.fire(ctx, r) {
				published++
			} else {
				failed++
			}
		}
		// неудачные вернулись в очередь, повторим на следующем тике
		if failed > 0 || len(due) < s.batchSize {
			return published
		}
	}
}

func (s *Service) fire(ctx context.Context, r models.DueReminder) bool {
	err := s.publisher.PublishReminder(ctx, r)
	s.metrics.ReminderFired(err == nil)
	if err == nil {
		return true
	}

	s.log.Error("failed to publish reminder", sl.Err(err), slog.String("reminder_id", r.ID))
	if err := s.repo.ReleaseReminder(context.WithoutCancel(ctx), r.ID, r.FiredAt); err != nil {
		s.log.Error("failed to release reminder", sl.Err(err), slog.String("reminder_id", r.ID))
	}
	return false
}
