// Package db owns the database connection, schema and migrations.
// SQLite (mattn/go-sqlite3) is the default store; PostgreSQL (lib/pq) is
// supported with the same SQL, placeholders rebound per driver.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Open opens a connection for driver/dsn and prepares it for use.
// For SQLite the parent directory of a file DSN is created and foreign keys
// are enabled.
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		if path := sqliteFilePath(dsn); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent ticket workers.
		database.SetMaxOpenConns(1)
		if _, err := database.Exec("PRAGMA foreign_keys = ON"); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return database, nil
}

// sqliteFilePath returns the filesystem path of a SQLite DSN, or "" for
// in-memory databases.
func sqliteFilePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

// IsPostgres reports whether database is backed by lib/pq.
func IsPostgres(database *sql.DB) bool {
	_, ok := database.Driver().(*pq.Driver)
	return ok
}

// BindFor returns the placeholder rewriter for database. Queries are written
// with '?' placeholders; PostgreSQL needs them numbered.
func BindFor(database *sql.DB) func(string) string {
	if IsPostgres(database) {
		return Rebind
	}
	return func(q string) string { return q }
}

// Rebind rewrites '?' placeholders to PostgreSQL's $1, $2, ...
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
