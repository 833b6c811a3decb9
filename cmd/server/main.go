package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/notifyhq/notification-engine/internal/config"
	"github.com/notifyhq/notification-engine/internal/dispatch"
	"github.com/notifyhq/notification-engine/internal/handlers"
	"github.com/notifyhq/notification-engine/internal/middleware"
	"github.com/notifyhq/notification-engine/internal/migration"
	"github.com/notifyhq/notification-engine/internal/repository"
	"github.com/notifyhq/notification-engine/internal/routes"
	"github.com/notifyhq/notification-engine/internal/scheduler"
	"github.com/notifyhq/notification-engine/internal/service"
	"github.com/notifyhq/notification-engine/internal/template"
	"github.com/notifyhq/notification-engine/internal/webhook"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config       *config.Config
	db           *sql.DB
	logger       zerolog.Logger
	orchestrator *service.Orchestrator
	scheduler    *scheduler.Scheduler
	applier      *webhook.Applier
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL)

	// Repositories and template registry.
	notifRepo := repository.NewNotificationRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)
	registry := template.NewCachedRegistry(template.NewStaticRegistry(), cfg.Templates.CacheTTL)

	// Channel dispatchers.
	emailDispatcher, err := dispatch.NewEmailDispatcher(cfg.Email, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure email dispatcher")
	}
	smsDispatcher, err := dispatch.NewSMSDispatcher(cfg.SMS, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure sms dispatcher")
	}
	pushDispatcher := dispatch.NewPushDispatcher(logger)

	orchestrator := service.NewOrchestrator(notifRepo, prefRepo, registry, logger, service.Options{
		BatchSize:  cfg.Batch.Size,
		ChunkDelay: cfg.Batch.ChunkDelay,
	}, emailDispatcher, smsDispatcher, pushDispatcher)

	app := &application{
		config:       cfg,
		db:           db,
		logger:       logger,
		orchestrator: orchestrator,
		scheduler:    scheduler.New(notifRepo, orchestrator, cfg.Scheduler.PollInterval, cfg.Scheduler.BatchLimit, logger),
		applier:      webhook.NewApplier(notifRepo, logger),
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter()
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"*"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type"}),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter() *mux.Router {
	ingestor := webhook.NewIngestor(app.applier, app.config.Webhooks.Secrets, app.logger)

	notificationHandler := handlers.NewNotificationHandler(app.orchestrator, app.logger)
	preferenceHandler := handlers.NewPreferenceHandler(app.orchestrator, app.logger)
	webhookHandler := handlers.NewWebhookHandler(ingestor, app.logger)
	schedulerHandler := handlers.NewSchedulerHandler(app.scheduler, app.logger)
	healthHandler := handlers.NewHealthHandler(app.db)

	return routes.NewRouter(notificationHandler, preferenceHandler, webhookHandler, schedulerHandler, healthHandler)
}

// startServer launches the HTTP server, the scheduler loop, and the webhook
// applier, then blocks until shutdown.
func (app *application) startServer(handler http.Handler) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		app.applier.Run(workerCtx)
	}()

	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := app.scheduler.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error().Err(err).Msg("scheduler terminated")
		}
	}()

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		app.logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		app.logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		app.logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		app.logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the scheduler and drain the webhook applier.
	stopWorkers()
	workers.Wait()
	app.logger.Info().Msg("Background workers stopped.")
}
