package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/ewaste-hub/internal/cache"
	"github.com/magabrotheeeer/ewaste-hub/internal/config"
	"github.com/magabrotheeeer/ewaste-hub/internal/filestore"
	adminqueries "github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/admin/queries"
	adminusers "github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/admin/users"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/auth/login"
	recoveryhandler "github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/auth/recovery"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/pages"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/profile"
	queryhandler "github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/query"
	reminderhandler "github.com/magabrotheeeer/ewaste-hub/internal/http/handlers/reminder"
	"github.com/magabrotheeeer/ewaste-hub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/jwt"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/metrics"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ewaste-hub/internal/lib/sl"
	"github.com/magabrotheeeer/ewaste-hub/internal/migrations"
	"github.com/magabrotheeeer/ewaste-hub/internal/notify"
	adminservice "github.com/magabrotheeeer/ewaste-hub/internal/services/admin"
	authservice "github.com/magabrotheeeer/ewaste-hub/internal/services/auth"
	queryservice "github.com/magabrotheeeer/ewaste-hub/internal/services/query"
	recoveryservice "github.com/magabrotheeeer/ewaste-hub/internal/services/recovery"
	reminderservice "github.com/magabrotheeeer/ewaste-hub/internal/services/reminder"
	"github.com/magabrotheeeer/ewaste-hub/internal/session"
	"github.com/magabrotheeeer/ewaste-hub/internal/storage/repository"
)

// App HTTP-приложение со всеми открытыми ресурсами.
type App struct {
	server          *http.Server
	logger          *slog.Logger
	db              *repository.Storage
	cache           *cache.Cache
	conn            *amqp.Connection
	ch              *amqp.Channel
	shutdownTimeout time.Duration
}

// New подключает хранилища и брокер, применяет миграции и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	a := &App{logger: logger, db: db, shutdownTimeout: cfg.ShutdownTimeout}

	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	a.cache, err = cache.InitServer(ctx, cfg.Redis)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	a.conn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.ch, err = rabbitmq.SetupChannel(a.conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	pictures, err := filestore.NewS3(ctx, cfg.S3, cfg.Upload.MaxSize)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to init file store: %w", err)
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	sessions := session.NewManager(logger, a.cache, jwt.NewJWTMaker(cfg.Session.SecretKey, cfg.Session.TTL), session.Options{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	})
	mailer := notify.New(rabbitmq.NewPublisher(a.ch))

	authService := authservice.New(logger, db, pictures, sessions, cfg.AdminCode, m)
	recoveryService := recoveryservice.New(logger, db, mailer, sessions, cfg.ResetLinkBaseURL)
	queryService := queryservice.New(logger, db, sessions, cfg.Abuse.Threshold, cfg.Abuse.Window, m)
	adminService := adminservice.New(logger, db, sessions, pictures, m)
	reminderService := reminderservice.New(logger, db, cfg.Reminder.HorizonTime)

	handlers := Handlers{
		Pages:        pages.New(cfg.GoogleMapsAPIKey),
		Register:     register.New(logger, authService),
		Login:        login.New(logger, authService),
		Recovery:     recoveryhandler.New(logger, recoveryService),
		Profile:      profile.New(logger, authService, cfg.Upload.MaxSize),
		Query:        queryhandler.New(logger, queryService),
		Reminder:     reminderhandler.New(logger, reminderService),
		AdminUsers:   adminusers.New(logger, adminService),
		AdminQueries: adminqueries.New(logger, adminService),
	}
	limiter := middlewarectx.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, handlers, sessions, limiter, m, prometheus.DefaultGatherer, cfg.HTTPServer.TrustedProxy)

	a.server = &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	return a, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
