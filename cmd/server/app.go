package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/companion-api/internal/config"
	"github.com/phrazzld/companion-api/internal/events"
	"github.com/phrazzld/companion-api/internal/jobs"
	"github.com/phrazzld/companion-api/internal/platform/flags"
	"github.com/phrazzld/companion-api/internal/platform/postgres"
	"github.com/phrazzld/companion-api/internal/platform/station"
	"github.com/phrazzld/companion-api/internal/platform/twilio"
	"github.com/phrazzld/companion-api/internal/service"
	"github.com/phrazzld/companion-api/internal/service/auth"
	"github.com/phrazzld/companion-api/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config

	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	linkStore store.LinkStore
	taskStore store.TaskStore
	jobStore  store.JobStore
	locker    store.Locker

	// External system clients
	stationClient *station.Client
	twilioClient  *twilio.Client

	// Service interfaces
	jwtService       auth.JWTService
	flagProvider     flags.Provider
	noteSynchronizer *service.NoteSynchronizer
	companionService *service.CompanionService
	webhookService   *service.WebhookService

	// Event system
	eventEmitter events.EventEmitter

	// Delayed job handling
	reminderScheduler *jobs.RunningLateScheduler
	jobRunner         *jobs.Runner
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger,
// and database connection that must be established before application
// initialization.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	// Initialize stores
	app.linkStore = postgres.NewPostgresLinkStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.jobStore = postgres.NewPostgresJobStore(db, logger)
	app.locker = postgres.NewAdvisoryLocker(db, logger)

	// Initialize external system clients
	app.stationClient = station.NewClient(cfg.Station, logger)
	app.twilioClient = twilio.NewClient(cfg.Twilio, logger)

	// Feature gates come from static configuration; the services only
	// see the flags.Provider interface.
	app.flagProvider = flags.NewStaticProvider(
		map[string]bool{
			flags.KeyRunningLateSMS: cfg.Flags.RunningLateSMSEnabled,
			flags.KeyConsentsModule: cfg.Flags.ConsentsModuleEnabled,
		},
		map[string][]string{
			flags.KeyDisplayedNoteTasks: cfg.Flags.DisplayedNoteTasks,
		},
	)

	// Initialize event emitter
	app.eventEmitter = events.NewInMemoryEventEmitter(logger)

	// Initialize note synchronizer
	app.noteSynchronizer, err = service.NewNoteSynchronizer(
		app.taskStore,
		app.stationClient,
		app.flagProvider,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create note synchronizer: %w", err)
	}

	// Initialize running-late reminder scheduler
	app.reminderScheduler, err = jobs.NewRunningLateScheduler(
		app.jobStore,
		app.stationClient,
		app.flagProvider,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder scheduler: %w", err)
	}

	// Initialize companion service
	app.companionService, err = service.NewCompanionService(
		db,
		app.linkStore,
		app.taskStore,
		app.stationClient,
		app.twilioClient,
		app.reminderScheduler,
		app.noteSynchronizer,
		app.flagProvider,
		app.eventEmitter,
		cfg.Companion,
		cfg.Twilio.FlowSID,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create companion service: %w", err)
	}

	// Initialize webhook service
	app.webhookService, err = service.NewWebhookService(
		app.locker,
		app.companionService,
		app.reminderScheduler,
		app.linkStore,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook service: %w", err)
	}

	// Task status changes re-synchronize the dispatcher-facing note
	// while the care team is on route.
	noteSyncHandler, err := service.NewNoteSyncHandler(
		app.noteSynchronizer,
		app.stationClient,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create note sync handler: %w", err)
	}
	if emitter, ok := app.eventEmitter.(*events.InMemoryEventEmitter); ok {
		emitter.RegisterHandler(noteSyncHandler)
	} else {
		return nil, fmt.Errorf("unexpected event emitter type, cannot register note sync handler")
	}

	// Initialize job runner
	app.jobRunner, err = setupJobRunner(app)
	if err != nil {
		return nil, fmt.Errorf("failed to setup job runner: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	err := app.startHTTPServer(ctx, router)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// setupJobRunner initializes and starts the delayed job processor.
func setupJobRunner(app *application) (*jobs.Runner, error) {
	executor, err := jobs.NewReminderExecutor(
		app.stationClient,
		app.twilioClient,
		app.linkStore,
		app.config.Twilio.FlowSID,
		app.config.Companion.BaseURL,
		app.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder executor: %w", err)
	}

	runnerConfig := jobs.DefaultRunnerConfig()
	if app.config.Jobs.WorkerCount > 0 {
		runnerConfig.WorkerCount = app.config.Jobs.WorkerCount
	}
	if app.config.Jobs.QueueSize > 0 {
		runnerConfig.QueueSize = app.config.Jobs.QueueSize
	}

	runner, err := jobs.NewRunner(app.jobStore, executor, runnerConfig, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create job runner: %w", err)
	}

	runner.Start()
	return runner, nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.jobRunner != nil {
		app.jobRunner.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second
