// Package migrations embeds the schema DDL for each backend. Files apply in
// lexical order (001_, 002_, ...) and every statement is idempotent, so
// re-applying a migration set is safe.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql
var files embed.FS

// Migration is one named DDL script.
type Migration struct {
	Name string
	SQL  string
}

// Postgres returns the PostgreSQL migration set in apply order.
func Postgres() ([]Migration, error) {
	return load("postgres")
}

// ClickHouse returns the ClickHouse migration set in apply order.
// ClickHouse rejects multi-statement scripts, so each file holds exactly one
// statement.
func ClickHouse() ([]Migration, error) {
	return load("clickhouse")
}

func load(dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(files, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{Name: entry.Name(), SQL: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
