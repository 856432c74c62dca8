package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearNodes deletes every registered node and leaves the schema in place.
func ClearNodes(ctx context.Context, pool *pgxpool.Pool) error {
	tag, err := pool.Exec(ctx, `DELETE FROM `+NodeTable)
	if err != nil {
		return fmt.Errorf("%s - delete from %s failed: %w", clearLogPrefix, NodeTable, err)
	}
	slog.Info(fmt.Sprintf("%s - Removed %d nodes from %s", clearLogPrefix, tag.RowsAffected(), NodeTable))
	return nil
}
