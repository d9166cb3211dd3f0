package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/joseph-ayodele/rxscan/db"
)

// MigratePostgres applies the embedded postgres migrations over a dedicated
// connection opened from a postgres:// URL.
func MigratePostgres(dsn string, logger *slog.Logger) error {
	url, err := pgx5URL(dsn)
	if err != nil {
		return err
	}
	src, err := iofs.New(db.Migrations, db.PostgresMigrationsDir)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Debug("migration close returned errors", "src_error", srcErr, "db_error", dbErr)
		}
	}()
	return applyMigrations(m, "postgres", logger)
}

// MigrateSQLite applies the embedded sqlite migrations on an open database.
// The migrate instance is not closed since that would close sqlDB too.
func MigrateSQLite(sqlDB *sql.DB, logger *slog.Logger) error {
	drv, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	src, err := iofs.New(db.Migrations, db.SQLiteMigrationsDir)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	return applyMigrations(m, "sqlite", logger)
}

func applyMigrations(m *migrate.Migrate, backend string, logger *slog.Logger) error {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		logger.Warn("database is in dirty state, forcing version", "backend", backend, "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no new migrations to apply", "backend", backend)
			return nil
		}
		return fmt.Errorf("failed to run %s migrations: %w", backend, err)
	}
	version, _, _ = m.Version()
	logger.Info("migrations applied successfully", "backend", backend, "version", version)
	return nil
}

func pgx5URL(dsn string) (string, error) {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, scheme); ok {
			return "pgx5://" + rest, nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", fmt.Errorf("migrations need DATABASE_URL in postgres:// URL form")
}
