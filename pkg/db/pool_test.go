package db

import (
	"context"
	"testing"
)

const poolTestPrefix = "db:pool_test"

func TestNewPool_InvalidURL(t *testing.T) {
	ctx := context.Background()
	pool, err := NewPool(ctx, "invalid://not-a-valid-database-url")
	if err == nil {
		if pool != nil {
			pool.Close()
		}
		t.Fatalf("%s - expected error for invalid URL", poolTestPrefix)
	}
	if pool != nil {
		t.Errorf("%s - expected nil pool on error", poolTestPrefix)
	}
}

// With no down scripts in the directory MigrationDown never touches the pool.
func TestMigrationDown_NoDownScripts(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_only_up.sql", "CREATE TABLE x ();")

	if err := MigrationDown(context.Background(), nil, dir); err != nil {
		t.Errorf("%s - MigrationDown returned %v, want nil", poolTestPrefix, err)
	}
}

func TestMigrationDown_MissingDir(t *testing.T) {
	if err := MigrationDown(context.Background(), nil, "/nonexistent/migrations"); err == nil {
		t.Errorf("%s - expected error for missing migration dir", poolTestPrefix)
	}
}
