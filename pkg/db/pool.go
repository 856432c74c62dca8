// Package db stores federated catalog nodes in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NodeTable is the table holding federated catalog nodes.
const NodeTable = "federated_catalog_node"

// NewPool creates a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations executes the given SQL scripts in order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrations)))

	for i, sql := range migrations {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration %d failed: %w", logPrefix, i+1, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationStatus writes whether the node table exists to w.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string, w io.Writer) error {
	const statusLogPrefix = "db:MigrationStatus"

	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
		NodeTable).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	source := migrationPath
	if source == "" {
		source = "embedded migrations"
	}
	if exists {
		fmt.Fprintf(w, "Migration status: applied (%s present, %d migration files in %s)\n", NodeTable, len(files), source)
	} else {
		fmt.Fprintf(w, "Migration status: not applied (run 'broker migrate up'). %d migration files in %s\n", len(files), source)
	}
	return nil
}

// MigrationDown undoes the most recent migration using its .down.sql script.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	downs, err := LoadDownMigrationFiles(migrationPath)
	if err != nil {
		return err
	}
	if len(downs) == 0 {
		slog.Warn(fmt.Sprintf("%s - no down migrations found", logPrefix))
		return nil
	}
	if _, err := pool.Exec(ctx, downs[0]); err != nil {
		return fmt.Errorf("%s - down migration failed: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Rolled back latest migration", logPrefix))
	return nil
}
