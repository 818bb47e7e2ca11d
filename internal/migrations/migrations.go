// Package migrations embeds the schema SQL (§3) so cmd/server and
// cmd/worker can apply it with golang-migrate's iofs source driver,
// without shipping the .sql files alongside the binary. Grounded on
// oziev02-ImageProcessor's internal/migrations + internal/app.runMigrations
// pattern.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed *.sql
var Files embed.FS

// Run applies every pending migration against dsn. Both cmd/server and
// cmd/worker call this before serving traffic, so either entrypoint can
// bring up a fresh database on its own.
func Run(dsn string, logger zerolog.Logger) error {
	sourceDriver, err := iofs.New(Files, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source driver: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Msg("database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Msg("database migrations completed successfully")
	return nil
}
