// Package migrations holds the schema for each SQL engine and applies it with
// golang-migrate from the embedded files.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// UpSQLite migrates a database opened with the modernc "sqlite" driver.
func UpSQLite(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite migration driver: %w", err)
	}
	return up(sqliteFS, "sqlite", "sqlite", driver)
}

// UpPostgres migrates a database opened with the pgx stdlib driver.
func UpPostgres(db *sql.DB) error {
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create postgres migration driver: %w", err)
	}
	return up(postgresFS, "postgres", "pgx5", driver)
}

// up does not close m: closing it would close the caller's *sql.DB.
func up(fsys embed.FS, dir, name string, driver database.Driver) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}
