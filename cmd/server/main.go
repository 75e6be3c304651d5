package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	sloggorm "github.com/orandin/slog-gorm"
	otellib "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/sweetmon/triage-api/cmd/server/internal/accounts"
	"github.com/sweetmon/triage-api/cmd/server/internal/dedup"
	"github.com/sweetmon/triage-api/cmd/server/internal/ingest"
	servermiddleware "github.com/sweetmon/triage-api/cmd/server/internal/middleware"
	"github.com/sweetmon/triage-api/cmd/server/internal/migrations"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/notify"
	"github.com/sweetmon/triage-api/cmd/server/internal/routes"
	"github.com/sweetmon/triage-api/cmd/server/internal/routes/admin"
	routesv1 "github.com/sweetmon/triage-api/cmd/server/internal/routes/v1"
	"github.com/sweetmon/triage-api/cmd/server/internal/testcases"
	"github.com/sweetmon/triage-api/internal/artifact"
	"github.com/sweetmon/triage-api/internal/config"
	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/normalize"
	"github.com/sweetmon/triage-api/internal/otel"
	"github.com/sweetmon/triage-api/internal/queue"
	"github.com/sweetmon/triage-api/internal/secret"
)

const name string = "github.com/sweetmon/triage-api/server"

const tokenSweepInterval = time.Minute

var tracer = otellib.Tracer(name)

type server struct {
	router       *echo.Echo
	config       *config.Config
	db           *gorm.DB
	otelShutdown func(context.Context) error
	queuer       queue.Queuer
	publisher    *notify.Publisher
	dispatcher   *notify.Dispatcher
	accounts     *accounts.Service

	backgroundCancel func()
	background       sync.WaitGroup
}

func openDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	ctx, span := tracer.Start(ctx, "openDB")
	defer span.End()

	gormLogger := slog.New(logger.Handler)

	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)
	if cfg.Logging.Gorm.TraceQueries {
		sg = sloggorm.New(
			sloggorm.WithHandler(gormLogger.Handler()),
			sloggorm.WithTraceAll(),
			sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
		)
	}

	db, err := gorm.Open(
		postgres.Open(cfg.PostgresDSN()),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire underlying database connection")
		return nil, fmt.Errorf("failed to acquire underlying database connection: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnectionTTL)

	if err = db.Use(gormtracing.NewPlugin()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to add otel plugin to gorm")
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	if err = migrations.Up(ctx, db); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to perform database migrations")
		return nil, fmt.Errorf("failed to perform database migrations: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "opened database")
	return db, nil
}

func initServer(ctx context.Context) (*server, error) {
	server := new(server)

	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server config: %w", err)
	}
	server.config = cfg

	shutdownOTel, err := otel.SetupOTelSDK(ctx, "triage-api", cfg.Logging.UseOTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL SDK: %w", err)
	}
	defer func() {
		// Something failed to initialize, make sure everything gets flushed to the server
		if server.otelShutdown == nil {
			otelShutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				time.Second*time.Duration(cfg.GracefulShutdownSecs),
			)
			defer cancel()

			if err = shutdownOTel(otelShutdownCtx); err != nil {
				logger.Logger.Error("failed to flush otel data", "error", err)
			}
		}
	}()

	ctx, span := tracer.Start(ctx, "initServer")
	defer span.End()

	logger.SetLevel(cfg.Logging.App.Level)

	db, err := openDB(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open database")
		return nil, err
	}

	span.AddEvent("migrated database to latest version")

	if err = models.LoadAPIKeysFromConfig(ctx, db, cfg.Admins); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load API keys from config")
		return nil, fmt.Errorf("failed to load API keys from config: %w", err)
	}

	span.AddEvent("loaded api keys from config")

	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set up artifact storage")
		return nil, fmt.Errorf("failed to set up artifact storage: %w", err)
	}

	queuer, err := buildQueue(cfg.Notify)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set up notification queue")
		return nil, fmt.Errorf("failed to set up notification queue: %w", err)
	}

	span.AddEvent("initialized storage and queue")

	server.db = db
	if err = server.wire(store, queuer); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to wire services")
		return nil, err
	}

	span.AddEvent("created echo router")

	server.otelShutdown = shutdownOTel

	return server, nil
}

// Builds the services on top of s.db and s.config and mounts their routes
func (s *server) wire(store *artifact.Store, queuer queue.Queuer) error {
	cfg := s.config
	box := secret.NewBox(cfg.Secret.ServerKey, cfg.Secret.LegacyWrites)

	dispatcher, err := notify.NewDispatcher(
		s.db,
		box,
		notify.NewSMTPMailer(cfg.Notify.SMTP.Timeout, cfg.Notify.SMTP.Insecure),
		notify.NewTelegramClient(
			cfg.Notify.Telegram.APIURL,
			cfg.Notify.Telegram.MessagesPerSec,
			cfg.Notify.Telegram.Timeout,
		),
		cfg.Notify.ProfileCacheTTL,
	)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	publisher := notify.NewPublisher(queuer, notify.DefaultPublishTimeout)

	normalizer, err := normalize.New(cfg.Ingest.Normalizer)
	if err != nil {
		return err
	}

	pipeline, err := ingest.New(
		s.db,
		store,
		dedup.NewIndex(cfg.Ingest.LockStripes),
		normalizer,
		publisher,
		ingest.WithExcerptLength(cfg.Ingest.ExcerptLength),
	)
	if err != nil {
		return fmt.Errorf("failed to create ingest pipeline: %w", err)
	}

	accountService := accounts.NewService(
		s.db,
		box,
		store,
		dispatcher,
		accounts.WithDownloadTokenTTL(cfg.Download.TokenTTL),
	)
	testcaseService := testcases.NewService(s.db, store)

	e, err := routes.BuildEcho(logger.Logger, nil)
	if err != nil {
		return fmt.Errorf("error building router: %w", err)
	}

	middlewareHandler := servermiddleware.Handler{DB: s.db, Accounts: accountService}
	v1Handler := routesv1.NewHandler(pipeline, testcaseService, accountService, cfg)
	v1Handler.AddRoutes(e, &middlewareHandler)
	admin.Create(accountService).AddRoutes(e, &middlewareHandler)

	s.router = e
	s.queuer = queuer
	s.publisher = publisher
	s.dispatcher = dispatcher
	s.accounts = accountService
	return nil
}

// Marks lapsed download tokens until ctx is done
func (s *server) sweepTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.accounts.ExpireDownloadTokens(ctx)
			if err != nil {
				logger.Logger.ErrorContext(ctx, "failed to expire download tokens", "error", err)
				continue
			}
			if expired > 0 {
				logger.Logger.DebugContext(ctx, "expired download tokens", "count", expired)
			}
		}
	}
}

func (s *server) Start(ctx context.Context) error {
	backgroundCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.backgroundCancel = cancel

	if s.config.Notify.Consume {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			notify.Run(
				backgroundCtx,
				s.queuer,
				s.dispatcher,
				s.config.Notify.Workers,
				s.config.Notify.HandlerTimeout,
			)
		}()
		logger.Logger.Info("consuming notifications", "workers", s.config.Notify.Workers)
	} else {
		logger.Logger.Info("not consuming notifications on this replica")
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.sweepTokens(backgroundCtx)
	}()

	logger.Logger.Info("Starting services...")

	err := s.router.Start(s.config.ListenAddress)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *server) Shutdown() error {
	var errs error

	ctx, cancelTimeout := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(s.config.GracefulShutdownSecs),
	)
	defer cancelTimeout()

	// stop taking submissions first so no event is published after the workers are gone
	if err := s.router.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	s.publisher.Wait()

	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}
	s.background.Wait()

	if sqlDB, err := s.db.DB(); err == nil {
		errs = errors.Join(errs, sqlDB.Close())
	}

	if s.otelShutdown != nil {
		errs = errors.Join(errs, s.otelShutdown(ctx))
	}

	return errs
}

// @title						Triage API
// @version					1.0
// @securityDefinitions.basic	BasicAuth
func main() {
	ctx, cancelSignal := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	logger.InitSlog()

	server, err := initServer(ctx)
	if err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	errch := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Got shutdown signal!")
		errch <- server.Shutdown()
		close(errch)
	}()

	if err := server.Start(ctx); err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	if err := <-errch; err != nil {
		logger.Logger.Error("Error shutting down server", "error", err)
	}

	cancelSignal()
}
