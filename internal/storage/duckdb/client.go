// Package duckdb implements the analytical stores on embedded DuckDB, for
// single-machine research runs that need persistence without a server.
package duckdb

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
)

// Client manages a DuckDB database handle.
type Client struct {
	db   *sql.DB
	path string
}

// NewClient opens a DuckDB database. path can be a file path for persistent
// storage or an empty string for in-memory.
func NewClient(path string) (*Client, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	return &Client{db: db, path: path}, nil
}

// DB returns the underlying sql.DB handle.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database handle.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema creates all tables and indexes. Idempotent.
func (c *Client) InitSchema() error {
	for _, stmt := range []string{createRealizedReturnsTable, createBacktestRowsTable} {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
