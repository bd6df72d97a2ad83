package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
)

// RunMigrateCommand dispatches the 'migrate' subcommand of the server
// binary against the database at dbPath.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}
	action := args[0]

	if action == "help" {
		PrintMigrateHelp()
		return
	}

	migrations, err := Migrations()
	if err != nil {
		log.Fatalf("Failed to load embedded migrations: %v", err)
	}
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		logVersion(database, migrations, "all migrations applied")

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		logVersion(database, migrations, "rolled back one migration")

	case "status":
		migrateStatus(database, migrations)

	case "version":
		target := parseVersion(args, "version")
		if err := database.MigrateTo(migrations, target); err != nil {
			log.Fatalf("Migration to version %d failed: %v", target, err)
		}
		log.Printf("migrated to version %d", target)

	case "force":
		target := parseVersion(args, "force")
		if !confirmForce(target) {
			log.Println("Aborted")
			return
		}
		if err := database.MigrateForce(migrations, int(target)); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("migration version forced to %d", target)

	case "baseline":
		target := parseVersion(args, "baseline")
		if err := database.BaselineAtVersion(target); err != nil {
			log.Fatalf("Baseline failed: %v", err)
		}
		log.Printf("database baselined at version %d", target)

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// parseVersion reads the numeric argument of version/force/baseline.
func parseVersion(args []string, action string) uint {
	if len(args) < 2 {
		log.Fatalf("Usage: position-report migrate %s <version_number>", action)
	}
	var version uint
	if _, err := fmt.Sscanf(args[1], "%d", &version); err != nil {
		log.Fatalf("Invalid version number: %s", args[1])
	}
	return version
}

func logVersion(database *DB, migrations fs.FS, action string) {
	version, dirty, _ := database.MigrateVersion(migrations)
	log.Printf("%s: version %d (dirty: %v)", action, version, dirty)
}

func migrateStatus(database *DB, migrations fs.FS) {
	status, err := database.GetMigrationStatus(migrations)
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}
	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		log.Fatalf("Failed to read bundled migrations: %v", err)
	}

	fmt.Printf("Current version: %v (latest available: %d)\n", status["current_version"], latest)
	fmt.Printf("Dirty: %v\n", status["dirty"])
	fmt.Printf("Schema migrations table exists: %v\n", status["schema_migrations_exists"])

	if dirty, _ := status["dirty"].(bool); dirty {
		fmt.Println()
		fmt.Println("A migration failed mid-execution. Inspect the database, fix the")
		fmt.Println("problem, then run: position-report migrate force <version>")
	}
}

// confirmForce asks before overwriting the recorded schema version.
func confirmForce(version uint) bool {
	fmt.Printf("Forcing migration version to %d overwrites the recorded schema\n", version)
	fmt.Println("state without running any migrations. Only do this to recover from")
	fmt.Println("a dirty state.")
	fmt.Print("Continue? [y/N]: ")

	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "Y"
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println(`Database Migration Commands

Usage: position-report migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  baseline <N>    Set migration version to N without running migrations
  help            Show this help message

The migrations run against the database named by the server's -db flag.`)
}
