// Package main implements the entry point for the companion API server,
// which drives the patient-facing visit checklist: link lifecycle,
// dashboard webhooks, task updates, and the running-late reminder.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/companion-api/internal/config"
	"github.com/phrazzld/companion-api/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	cfg, appLogger, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if *migrateCmd != "" {
		if err := runMigrations(cfg, *migrateCmd); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	db, err := setupAppDatabase(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initializeApp loads configuration and sets up structured logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	return cfg, appLogger, nil
}
