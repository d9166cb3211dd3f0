package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/rxscan/internal/common"
	"github.com/joseph-ayodele/rxscan/internal/repository"
)

// OpenRepository connects to the persistence backend named by DB_BACKEND,
// runs migrations when enabled, and returns the repository with its closer.
func OpenRepository(ctx context.Context, c common.DatabaseConfig, logger *slog.Logger) (repository.ExtractionRepository, func(), error) {
	switch c.Backend {
	case "postgres":
		if c.AutoMigrate {
			if err := repository.MigratePostgres(c.DSN, logger); err != nil {
				return nil, nil, common.WrapError(err, "migrate postgres")
			}
		}
		drv, pool, err := repository.OpenPostgres(ctx, repository.Config{
			DSN:              c.DSN,
			MaxConns:         c.MaxConns,
			MinConns:         c.MinConns,
			MaxConnLifetime:  c.MaxConnLifetime,
			MaxConnIdleTime:  c.MaxConnIdleTime,
			DialTimeout:      c.DialTimeout,
			StatementTimeout: c.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, nil, common.WrapError(err, "connect postgres")
		}
		if err := repository.HealthCheck(ctx, drv.DB(), c.DialTimeout, logger); err != nil {
			repository.Close(drv, pool, logger)
			return nil, nil, common.WrapError(err, "postgres health check")
		}
		logger.Info("successfully connected to database", "backend", "postgres")
		return repository.NewSQLExtractionRepository(drv, logger), func() { repository.Close(drv, pool, logger) }, nil

	case "sqlite":
		drv, err := repository.OpenSQLite(ctx, c.SQLitePath, logger)
		if err != nil {
			return nil, nil, common.WrapError(err, "open sqlite")
		}
		if c.AutoMigrate {
			if err := repository.MigrateSQLite(drv.DB(), logger); err != nil {
				repository.Close(drv, nil, logger)
				return nil, nil, common.WrapError(err, "migrate sqlite")
			}
		}
		logger.Info("successfully connected to database", "backend", "sqlite")
		return repository.NewSQLExtractionRepository(drv, logger), func() { repository.Close(drv, nil, logger) }, nil

	case "mongo":
		client, repo, err := repository.OpenMongo(ctx, c.MongoURI, c.MongoDatabase, logger)
		if err != nil {
			return nil, nil, common.WrapError(err, "connect mongo")
		}
		logger.Info("successfully connected to database", "backend", "mongo")
		return repo, func() {
			logger.Info("closing database connections")
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("failed to disconnect mongo client", "error", err)
			}
		}, nil
	}
	return nil, nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown DB_BACKEND %q", c.Backend), common.ErrInvalidInput)
}

// Migrate applies schema migrations for the relational backends. Mongo needs
// none beyond the indexes OpenMongo creates.
func Migrate(ctx context.Context, c common.DatabaseConfig, logger *slog.Logger) error {
	switch c.Backend {
	case "postgres":
		return repository.MigratePostgres(c.DSN, logger)
	case "sqlite":
		drv, err := repository.OpenSQLite(ctx, c.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer repository.Close(drv, nil, logger)
		return repository.MigrateSQLite(drv.DB(), logger)
	case "mongo":
		logger.Info("mongo backend has no migrations; indexes are created on connect")
		return nil
	}
	return common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown DB_BACKEND %q", c.Backend), common.ErrInvalidInput)
}
