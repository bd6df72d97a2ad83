package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// OpenDB opens (creating if necessary) the SQLite database at path. The
// schema itself is owned by the migrations; see MigrateUp.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Pragmas are per-connection, so keep a single connection. SQLite
	// serializes writers anyway.
	sqlDB.SetMaxOpenConns(1)

	// Survey readings cascade on fingerprint deletion.
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{sqlDB}, nil
}
