package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	migrations "github.com/traindeck/traindeck-api/db"
	"github.com/traindeck/traindeck-api/internal/redact"
)

// runMigrations applies the embedded migrations. Running them on every
// start keeps deploys single-step; goose makes already-applied
// migrations a no-op.
func runMigrations(db *sql.DB, log *slog.Logger) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %s", redact.Error(err))
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %s", redact.Error(err))
	}

	log.Info("database migrations applied", "version", version)
	return nil
}
