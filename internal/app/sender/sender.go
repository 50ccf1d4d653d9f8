// Package sender собирает воркер, доставляющий уведомления из очередей по SMTP.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/ewaste-hub/internal/cache"
	"github.com/magabrotheeeer/ewaste-hub/internal/config"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/ewaste-hub/internal/services/sender"
)

// App приложение отправителя уведомлений.
type App struct {
	conn           *amqp.Connection
	ch             *amqp.Channel
	cache          *cache.Cache
	senderService  *senderservice.Service
	logger         *slog.Logger
	metricsAddress string
}

// New подключается к брокеру и Redis и собирает отправителя.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	cacheRedis, err := cache.InitServer(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		_ = cacheRedis.Close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = cacheRedis.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		_ = cacheRedis.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	senderService := senderservice.New(transport, cacheRedis, logger, m, cfg.Scheduler.DedupeTTL)

	return &App{
		conn:           conn,
		ch:             ch,
		cache:          cacheRedis,
		senderService:  senderService,
		logger:         logger,
		metricsAddress: cfg.Scheduler.MetricsAddress,
	}, nil
}

// Run читает все очереди уведомлений до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if a.metricsAddress != "" {
		go metrics.Serve(ctx, a.logger, a.metricsAddress, prometheus.DefaultGatherer)
	}

	for _, q := range rabbitmq.GetNotificationQueues() {
		if err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, q.QueueName, a.senderService.HandleMessage); err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.QueueName), sl.Err(err))
			a.close()
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close cache", sl.Err(err))
	}
}
