// Package main is the entrypoint for the catalog broker.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/catalog-broker/internal/config"
	"github.com/morezero/catalog-broker/internal/server"
	"github.com/morezero/catalog-broker/pkg/db"
	"github.com/morezero/catalog-broker/pkg/selfdescription"
)

const usage = `Usage: broker [command]
       broker serve              Start the broker (HTTP multipart endpoint, optional NATS).
       broker migrate up          Run database migrations.
       broker migrate down        Roll back the latest migration.
       broker migrate status      Show migration status.
       broker ensure-db [name]    Create database if missing (default: name from DATABASE_URL).
       broker clear               Delete all registered catalog nodes; schema is preserved.
       broker describe [file]     Print the self-description the broker would serve.

Commands:
  serve           (default) Start the catalog broker.
  migrate up      Run database migrations only.
  migrate down    Roll back the latest migration that has a .down.sql script.
  migrate status  Show current migration status.
  ensure-db [name] Create database on the same host as DATABASE_URL.
  clear           Delete catalog nodes; schema preserved.
  describe [file] Resolve the self-description from file, BROKER_SELF_DESCRIPTION_FILE or defaults.

Environment: BROKER_CONNECTOR_ID, BROKER_DIRECTORY (postgres|memory), DATABASE_URL, MIGRATION_PATH,
BROKER_HTTP_ADDR (default :8080), COMMS_ENABLED, COMMS_URL. See README.
`

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n%s", err, usage)
			os.Exit(1)
		}
		log.Fatalf("broker: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			return fmt.Errorf("%w: migrate requires a subcommand (up, down, status)", errUsage)
		}
		switch sub := args[1]; sub {
		case "up":
			return withPool(runMigrateUp)
		case "down":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				return db.MigrationDown(ctx, pool, cfg.MigrationPath)
			})
		case "status":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				return db.MigrationStatus(ctx, pool, cfg.MigrationPath, stdout)
			})
		default:
			return fmt.Errorf("%w: unknown migrate subcommand %q (use up, down, status)", errUsage, sub)
		}
	case "clear":
		return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
			if err := db.ClearNodes(ctx, pool); err != nil {
				return fmt.Errorf("clear nodes: %w", err)
			}
			return nil
		})
	case "ensure-db":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		return runEnsureDB(name, stdout)
	case "describe":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		return runDescribe(file, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	case "serve", "":
		return server.Run()
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// withPool loads DB config, opens a pool for fn and closes it afterwards.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string, stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := withDatabaseName(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Database is ready.")
	return nil
}

// withDatabaseName replaces the database in databaseURL; an empty name keeps it.
// The query (e.g. sslmode) is preserved.
func withDatabaseName(databaseURL, name string) (string, error) {
	if name == "" {
		return databaseURL, nil
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

func runDescribe(file string, stdout io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	desc, err := selfdescription.Load(server.SelfDescriptionParams(cfg), file, cfg.SelfDescriptionFile)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, desc.Raw, "", "  "); err != nil {
		return fmt.Errorf("format self-description: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(stdout)
	return err
}
