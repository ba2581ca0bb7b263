// Package migrations embeds the SQL schema for every supported driver and
// applies it with golang-migrate, mirroring the versioned, numbered-file
// migration convention the wider example corpus uses for its own SQL
// backends rather than the teacher's JSON-state-file migration manager,
// which tracked config/session-format upgrades, not table DDL.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// Apply runs every pending up migration for driver ("sqlite", "postgres",
// or "cockroach", which uses the postgres dialect) against db.
func Apply(db *sql.DB, driver string) error {
	var (
		sourceFS embed.FS
		dir      string
	)

	switch driver {
	case "sqlite":
		sourceFS, dir = sqliteFS, "sqlite"
	case "postgres", "cockroach":
		sourceFS, dir = postgresFS, "postgres"
	default:
		return fmt.Errorf("migrations: unsupported driver %q", driver)
	}

	src, err := iofs.New(sourceFS, dir)
	if err != nil {
		return fmt.Errorf("migrations: open embedded source: %w", err)
	}

	var target migrate.Driver
	switch driver {
	case "sqlite":
		d, err := sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("migrations: sqlite driver: %w", err)
		}
		target = d
	case "postgres", "cockroach":
		d, err := postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return fmt.Errorf("migrations: postgres driver: %w", err)
		}
		target = d
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return fmt.Errorf("migrations: new migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrations: apply: %w", err)
	}
	return nil
}
