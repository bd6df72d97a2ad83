package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/position.report/internal/db"
)

// newTestDB opens a fresh database in a temp directory and applies all
// migrations.
func newTestDB(t *testing.T) *db.DB {
	t.Helper()

	d, err := db.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	migrations, err := db.Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if err := d.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}

	return d
}

func float64Ptr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }
