package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

func openDB(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*sqlx.DB, error) {
	dsn := normalizeDBURL(cfg.URL, true)

	db, err := otelsqlx.Open("postgres", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithDBName(dbNameFromURL(dsn)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connected",
		"db_name", dbNameFromURL(dsn),
		"max_open_conns", cfg.MaxOpenConns,
	)
	return db, nil
}

// applyMigrations brings the schema up to date at process start. Running
// against an already-current schema is a no-op, so restarts are safe.
func applyMigrations(cfg config.DatabaseConfig, logger *logging.Logger) error {
	if cfg.MigrationsDir == "" {
		logger.Info("no migrations dir configured, skipping schema check")
		return nil
	}

	sourceURL := "file://" + filepath.ToSlash(cfg.MigrationsDir)
	m, err := migrate.New(sourceURL, cfg.URL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("close migrator source", "error", srcErr)
		}
		if dbErr != nil {
			logger.Warn("close migrator database", "error", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("schema migrations applied", "source", sourceURL)
	return nil
}
