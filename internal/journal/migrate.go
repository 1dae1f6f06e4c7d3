package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const (
	migrationsDirectoryConstant           = "migrations"
	migrationSourceNameConstant           = "iofs"
	migrationDatabaseNameConstant         = "sqlite"
	migrationSourceErrorTemplateConstant  = "create migration source: %w"
	migrationDriverErrorTemplateConstant  = "create migration db driver: %w"
	migratorCreationErrorTemplateConstant = "create migrator: %w"
	migrationRunErrorTemplateConstant     = "run migrations: %w"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending schema migrations embedded in the binary.
// Already-applied migrations are skipped.
func RunMigrations(database *sql.DB) error {
	sourceDriver, sourceError := iofs.New(migrationsFS, migrationsDirectoryConstant)
	if sourceError != nil {
		return fmt.Errorf(migrationSourceErrorTemplateConstant, sourceError)
	}

	databaseDriver, driverError := migratesqlite.WithInstance(database, &migratesqlite.Config{})
	if driverError != nil {
		return fmt.Errorf(migrationDriverErrorTemplateConstant, driverError)
	}

	migrator, migratorError := migrate.NewWithInstance(migrationSourceNameConstant, sourceDriver, migrationDatabaseNameConstant, databaseDriver)
	if migratorError != nil {
		return fmt.Errorf(migratorCreationErrorTemplateConstant, migratorError)
	}

	if upError := migrator.Up(); upError != nil && !errors.Is(upError, migrate.ErrNoChange) {
		return fmt.Errorf(migrationRunErrorTemplateConstant, upError)
	}

	return nil
}
