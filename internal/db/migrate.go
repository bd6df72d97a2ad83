package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the migration files compiled into the binary, rooted
// so golang-migrate sees them at the top level.
func Migrations() (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}

// migrator builds a migrate instance over the open connection. The instance
// is never closed: closing it would close db.DB underneath the caller.
func (db *DB) migrator(migrations fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger forwards golang-migrate's progress lines to the process log.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) { log.Printf("[migrate] "+format, v...) }
func (migrateLogger) Verbose() bool                          { return false }

// MigrateUp applies every pending migration. A database already at the
// latest version is not an error.
func (db *DB) MigrateUp(migrations fs.FS) error {
	m, err := db.migrator(migrations)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migrations fs.FS) error {
	m, err := db.migrator(migrations)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateTo migrates up or down until the schema is at version.
func (db *DB) MigrateTo(migrations fs.FS, version uint) error {
	m, err := db.migrator(migrations)
	if err != nil {
		return err
	}
	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// MigrateForce overwrites the recorded version without touching the schema.
// Recovery tool for a dirty state, nothing else.
func (db *DB) MigrateForce(migrations fs.FS, version int) error {
	m, err := db.migrator(migrations)
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}
	return nil
}

// MigrateVersion reports the schema version and dirty flag. A database with
// no applied migrations reports version 0, clean.
func (db *DB) MigrateVersion(migrations fs.FS) (version uint, dirty bool, err error) {
	m, err := db.migrator(migrations)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// BaselineAtVersion records version in schema_migrations without running
// anything, for adopting a database whose schema predates the migration
// history. Refuses to baseline over an existing history.
func (db *DB) BaselineAtVersion(version uint) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL,
			dirty INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON schema_migrations (version);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		return fmt.Errorf("failed to check existing migrations: %w", err)
	}
	if applied > 0 {
		return fmt.Errorf("database already has migrations applied, cannot baseline")
	}

	if _, err := db.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)", version); err != nil {
		return fmt.Errorf("failed to insert baseline version: %w", err)
	}
	log.Printf("Database baselined at version %d", version)
	return nil
}

// GetMigrationStatus summarises the schema state for the status subcommand
// and debug surfaces.
func (db *DB) GetMigrationStatus(migrations fs.FS) (map[string]interface{}, error) {
	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration version: %w", err)
	}

	var tracked bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&tracked)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}

	return map[string]interface{}{
		"current_version":          version,
		"dirty":                    dirty,
		"schema_migrations_exists": tracked,
	}, nil
}

// GetLatestMigrationVersion scans the migration filesystem for the highest
// NNNNNN_name.up.sql version.
func GetLatestMigrationVersion(migrations fs.FS) (uint, error) {
	entries, err := fs.Glob(migrations, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}

	var latest uint
	for _, entry := range entries {
		var version uint
		if _, err := fmt.Sscanf(entry, "%d_", &version); err == nil && version > latest {
			latest = version
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("could not determine latest migration version")
	}
	return latest, nil
}

// CheckAndPromptMigrations compares the schema against the bundled
// migrations and tells an operator what to run when they disagree. The
// bool is true when startup should abort.
func (db *DB) CheckAndPromptMigrations(migrations fs.FS) (bool, error) {
	current, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		return false, fmt.Errorf("failed to get current migration version: %w", err)
	}
	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		return false, fmt.Errorf("failed to get latest migration version: %w", err)
	}

	switch {
	case dirty:
		return true, fmt.Errorf("database is in a dirty state (version %d). Run 'position-report migrate status' to diagnose", current)
	case current == latest:
		return false, nil
	case current > latest:
		return true, fmt.Errorf("database version (%d) is ahead of latest migration (%d). This should not happen", current, latest)
	}

	log.Printf("database schema is %d migration(s) behind: version %d, latest %d", latest-current, current, latest)
	log.Printf("run 'position-report migrate up' to apply them")
	return true, fmt.Errorf("database schema is out of date (version %d, need %d). Please run migrations", current, latest)
}
