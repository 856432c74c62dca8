package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/catalog-broker/pkg/directory"
)

const repoLogPrefix = "db:repository"

// Repository is a directory.NodeDirectory backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

var _ directory.NodeDirectory = (*Repository)(nil)

// NewRepository creates a Repository on the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var errNoPool = errors.New("database pool not configured")

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return fmt.Errorf("%s - %w", repoLogPrefix, errNoPool)
	}
	return r.pool.Ping(ctx)
}

// Insert upserts a node by name.
func (r *Repository) Insert(ctx context.Context, node directory.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	if r.pool == nil {
		return fmt.Errorf("%s - Insert: %w", repoLogPrefix, errNoPool)
	}
	slog.Debug(fmt.Sprintf("%s - Insert name=%s", repoLogPrefix, node.Name))

	protocols := node.SupportedProtocols
	if protocols == nil {
		protocols = []string{}
	}
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO federated_catalog_node (name, target_url, supported_protocols, created, modified)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (name) DO UPDATE SET
		   target_url = EXCLUDED.target_url,
		   supported_protocols = EXCLUDED.supported_protocols,
		   modified = EXCLUDED.modified`,
		node.Name, node.TargetURL, protocols, now)
	if err != nil {
		return fmt.Errorf("%s - Insert failed: %w", repoLogPrefix, err)
	}
	return nil
}

// Get returns the node with the given name, or nil when none exists.
func (r *Repository) Get(ctx context.Context, name string) (*directory.Node, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("%s - Get: %w", repoLogPrefix, errNoPool)
	}
	row := r.pool.QueryRow(ctx,
		`SELECT name, target_url, supported_protocols
		 FROM federated_catalog_node
		 WHERE name = $1`, name)

	var n directory.Node
	err := row.Scan(&n.Name, &n.TargetURL, &n.SupportedProtocols)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - Get failed: %w", repoLogPrefix, err)
	}
	return &n, nil
}

// GetAll returns every node ordered by name.
func (r *Repository) GetAll(ctx context.Context) ([]directory.Node, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("%s - GetAll: %w", repoLogPrefix, errNoPool)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT name, target_url, supported_protocols
		 FROM federated_catalog_node
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%s - GetAll query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	nodes := []directory.Node{}
	for rows.Next() {
		var n directory.Node
		if err := rows.Scan(&n.Name, &n.TargetURL, &n.SupportedProtocols); err != nil {
			return nil, fmt.Errorf("%s - GetAll scan failed: %w", repoLogPrefix, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - GetAll rows failed: %w", repoLogPrefix, err)
	}
	return nodes, nil
}

// Delete removes the node with the given name and returns the deleted row,
// or nil when no node had that name.
func (r *Repository) Delete(ctx context.Context, name string) (*directory.Node, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("%s - Delete: %w", repoLogPrefix, errNoPool)
	}
	var n directory.Node
	err := r.pool.QueryRow(ctx,
		`DELETE FROM federated_catalog_node
		 WHERE name = $1
		 RETURNING name, target_url, supported_protocols`, name).
		Scan(&n.Name, &n.TargetURL, &n.SupportedProtocols)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - Delete failed: %w", repoLogPrefix, err)
	}
	return &n, nil
}
