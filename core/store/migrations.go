package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"sentinel-console/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations_pg/*.sql
var migrationsPgFS embed.FS

//go:embed migrations_sqlite/*.sql
var migrationsSqliteFS embed.FS

// ApplyMigrations runs the embedded goose migrations for the given
// driver. The sqlite set exists for the test runtime only; postgres is
// the production dialect.
func ApplyMigrations(ctx context.Context, db *sql.DB, dbDriver string, logger *utils.Logger) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	var (
		dialect string
		fsys    embed.FS
		dir     string
	)
	switch strings.ToLower(strings.TrimSpace(dbDriver)) {
	case "", "postgres", "pg":
		dialect, fsys, dir = "postgres", migrationsPgFS, "migrations_pg"
	case "sqlite":
		dialect, fsys, dir = "sqlite3", migrationsSqliteFS, "migrations_sqlite"
	default:
		return fmt.Errorf("unsupported db driver for migrations: %s", dbDriver)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	goose.SetBaseFS(fsys)
	if logger != nil {
		logger.Printf("applying goose migrations (%s)", dialect)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("goose migrations applied")
	}
	return nil
}
