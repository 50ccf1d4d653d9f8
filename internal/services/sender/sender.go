// Package sender доставляет уведомления из очереди по SMTP.
//
// Каждое сообщение несёт ключ идемпотентности. Перед отправкой ключ занимается
// в Redis (SETNX), поэтому повторная доставка того же сообщения брокером не
// приводит к повторному письму. При ошибке отправки ключ освобождается и
// сообщение возвращается в очередь.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/smtp"
	"github.com/magabrotheeeer/ewaste-hub/internal/models"
)

const dedupePrefix = "notification:"

// Результаты обработки для метрик.
const (
	ResultSent      = "sent"
	ResultDuplicate = "duplicate"
	ResultInvalid   = "invalid"
	ResultFailed    = "failed"
)

// Deduper занимает ключи идемпотентности.
type Deduper interface {
	Claim(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// Service отправитель уведомлений.
type Service struct {
	transport smtp.TransportInterface
	dedupe    Deduper
	log       *slog.Logger
	metrics   *metrics.Metrics
	dedupeTTL time.Duration
}

// New создаёт отправителя. Ключи идемпотентности живут dedupeTTL.
func New(transport smtp.TransportInterface, dedupe Deduper, log *slog.Logger, m *metrics.Metrics,
	dedupeTTL time.Duration) *Service {
	return &Service{
		transport: transport,
		dedupe:    dedupe,
		log:       log,
		metrics:   m,
		dedupeTTL: dedupeTTL,
	}
}

// HandleMessage обрабатывает одно сообщение очереди. Ошибка означает,
// что сообщение нужно вернуть в очередь.
func (s *Service) HandleMessage(ctx context.Context, messageID string, body []byte) error {
	log := s.log.With(slog.String("message_id", messageID))

	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		log.Error("failed to unmarshal notification, dropping", sl.Err(err))
		s.metrics.Notification("unknown", ResultInvalid)
		return nil
	}
	if n.To == "" || n.DedupeKey == "" {
		log.Error("notification without recipient or dedupe key, dropping", slog.String("type", n.Type))
		s.metrics.Notification(n.Type, ResultInvalid)
		return nil
	}

	key := dedupePrefix + n.DedupeKey
	claimed, err := s.dedupe.Claim(ctx, key, s.dedupeTTL)
	if err != nil {
		s.metrics.Notification(n.Type, ResultFailed)
		return fmt.Errorf("sender.HandleMessage: claim: %w", err)
	}
	if !claimed {
		log.Info("duplicate notification skipped", slog.String("dedupe_key", n.DedupeKey))
		s.metrics.Notification(n.Type, ResultDuplicate)
		return nil
	}

	if err := s.sendEmail(n.To, n.Subject, n.HTMLBody); err != nil {
		if relErr := s.dedupe.Invalidate(context.WithoutCancel(ctx), key); relErr != nil {
			log.Error("failed to release dedupe key", sl.Err(relErr))
		}
		s.metrics.Notification(n.Type, ResultFailed)
		return fmt.Errorf("sender.HandleMessage: %w", err)
	}
	s.metrics.Notification(n.Type, ResultSent)
	log.Info("notification sent", slog.String("type", n.Type), slog.String("to", n.To))
	return nil
}

func buildMessage(from, to, subject, htmlBody string) string {
	return strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		htmlBody,
	}, "\r\n")
}

func (s *Service) sendEmail(to, subject, htmlBody string) error {
	from := s.transport.From()
	msg := buildMessage(from, to, subject, htmlBody)

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}
	if err := client.Rcpt(to); err != nil {
		s.log.Error("failed to set RCPT TO", slog.String("recipient", to), sl.Err(err))
		return err
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}
	return nil
}
