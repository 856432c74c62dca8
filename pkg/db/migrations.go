package db

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
)

const migrationsLogPrefix = "db:migrations"

const downSuffix = ".down.sql"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// LoadMigrationFiles returns the up migrations in dir sorted by name. An empty
// dir selects the migrations compiled into the binary.
func LoadMigrationFiles(dir string) ([]string, error) {
	return loadMigrations(dir, false)
}

// LoadDownMigrationFiles returns the *.down.sql files in dir in reverse name
// order, so the most recent migration is undone first.
func LoadDownMigrationFiles(dir string) ([]string, error) {
	return loadMigrations(dir, true)
}

func loadMigrations(dir string, down bool) ([]string, error) {
	fsys, source := migrationFS(dir)

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, source, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		if strings.HasSuffix(name, downSuffix) != down {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if down {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	var out []string
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s/%s: %w", migrationsLogPrefix, source, name, err)
		}
		out = append(out, string(data))
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), source))
	return out, nil
}

func migrationFS(dir string) (fs.FS, string) {
	if dir == "" {
		sub, _ := fs.Sub(embeddedMigrations, "migrations")
		return sub, "embedded"
	}
	return os.DirFS(dir), dir
}
