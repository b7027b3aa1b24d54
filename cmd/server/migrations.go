package main

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/phrazzld/companion-api/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// slogGooseLogger adapts goose's logger interface to slog.
type slogGooseLogger struct{}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...), "component", "migrations")
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	slog.Info(fmt.Sprintf(format, v...), "component", "migrations")
}

// runMigrations executes the requested goose command against the
// configured database using the embedded migration files.
func runMigrations(cfg *config.Config, command string) error {
	correlationID := uuid.New().String()
	migrationLogger := slog.Default().With(
		"correlation_id", correlationID,
		"component", "migrations",
		"command", command,
	)

	startTime := time.Now()
	migrationLogger.Info("Starting migration operation",
		"operation", fmt.Sprintf("goose %s", command))

	goose.SetLogger(&slogGooseLogger{})
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			migrationLogger.Error("Error closing database connection", "error", err)
		}
		migrationLogger.Info("Migration operation completed",
			"duration_ms", time.Since(startTime).Milliseconds())
	}()

	switch command {
	case "up":
		err = goose.Up(db, "migrations")
	case "down":
		err = goose.Down(db, "migrations")
	case "status":
		err = goose.Status(db, "migrations")
	default:
		return fmt.Errorf("unknown migration command: %q", command)
	}

	if err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}
	return nil
}
