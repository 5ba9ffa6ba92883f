package repository

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs all pending database migrations.
func (r *SQLiteRepository) Migrate() error {
	if r.db == nil {
		return fmt.Errorf("database not opened")
	}
	return MigrateWithDB(r.db)
}

// MigrateWithDB runs migrations on a raw connection. Useful for tests that
// manage their own database handle.
func MigrateWithDB(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
