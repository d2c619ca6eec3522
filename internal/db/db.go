package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL backend behind a *sql.DB.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Rebind rewrites ? placeholders into the backend's native form. Queries in
// the repo layer are written with ? and rebound once per statement.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
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

// Open connects to the durable store named by url: postgres:// and
// postgresql:// URLs use lib/pq, anything else is treated as a SQLite file
// path. The SQLite parent directory is created if missing.
func Open(url string) (*sql.DB, Dialect, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		conn, err := sql.Open("postgres", url)
		if err != nil {
			return nil, Postgres, fmt.Errorf("open postgres: %w", err)
		}
		return conn, Postgres, nil
	}
	if dir := filepath.Dir(url); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, SQLite, err
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", url)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, SQLite, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent mutation load.
	conn.SetMaxOpenConns(1)
	return conn, SQLite, nil
}
