// Package scheduler собирает воркер, публикующий наступившие напоминания.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/ewaste-hub/internal/config"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/notify"
	schedulerservice "github.com/magabrotheeeer/ewaste-hub/internal/services/scheduler"
	"github.com/magabrotheeeer/ewaste-hub/internal/storage/repository"
)

const (
	dbReadyRetries = 10
	dbReadyDelay   = 3 * time.Second
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.Service
	db               *repository.Storage
	conn             *amqp.Connection
	ch               *amqp.Channel
	logger           *slog.Logger
	metricsAddress   string
}

// waitForDB ждёт, пока HTTP-приложение применит миграции.
func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range dbReadyRetries {
		if err = repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dbReadyDelay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, nil, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, nil, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(ctx, db); err != nil {
		closeResources(ch, conn, db, logger)
		return nil, err
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		closeResources(ch, conn, db, logger)
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	publisher := notify.New(rabbitmq.NewPublisher(ch))
	schedulerService := schedulerservice.New(db, publisher, logger, m, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize)

	return &App{
		schedulerService: schedulerService,
		db:               db,
		conn:             conn,
		ch:               ch,
		logger:           logger,
		metricsAddress:   cfg.Scheduler.MetricsAddress,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, db *repository.Storage, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("failed to close storage", sl.Err(err))
		}
	}
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if a.metricsAddress != "" {
		go metrics.Serve(ctx, a.logger, a.metricsAddress, prometheus.DefaultGatherer)
	}

	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")
	closeResources(a.ch, a.conn, a.db, a.logger)
	return nil
}
