package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var files embed.FS

// Dialect names match the sqlx driver names used by the store
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "pgx"
)

var suffixes = map[string]string{
	DialectSQLite:   ".sqlite.sql",
	DialectPostgres: ".postgres.sql",
}

// Schema returns every migration for the dialect, in file name order
func Schema(dialect string) ([]string, error) {
	suffix, ok := suffixes[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	names, err := fs.Glob(files, "sql/*"+suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no migrations found for %s", dialect)
	}
	sort.Strings(names)

	statements := make([]string, 0, len(names))
	for _, name := range names {
		content, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		statements = append(statements, strings.TrimSpace(string(content)))
	}
	return statements, nil
}
