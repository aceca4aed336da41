// Package sqlstore persists sessions and reads profiles from PostgreSQL or
// SQLite. Both dialects share one implementation; only placeholders and the
// schema bootstrap differ.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	// Import the pure-Go SQLite driver (registers "sqlite").
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB implements store.SessionStore, store.SessionPurger, store.ProfileStore
// and store.Pinger.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects, verifies the connection and makes sure the tables exist.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	var driver string
	switch dialect {
	case Postgres:
		driver = "postgres"
	case SQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	if dialect == SQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(2 * time.Hour)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}

	d := &DB{db: db, dialect: dialect}
	if err := d.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping %s database: %w", d.dialect, err)
	}
	return nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// placeholder returns the n-th (1-based) bind parameter for the dialect.
func (d *DB) placeholder(n int) string {
	if d.dialect == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// rebind rewrites "?" markers into dialect placeholders.
func (d *DB) rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS router_sessions (
		session_id      TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		service         TEXT NOT NULL,
		message_history TEXT NOT NULL,
		context         TEXT NOT NULL,
		created_at_ms   BIGINT NOT NULL,
		last_active_ms  BIGINT NOT NULL,
		expired         INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_router_sessions_user ON router_sessions (user_id, last_active_ms)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id        TEXT PRIMARY KEY,
		full_name TEXT,
		phone     TEXT,
		email     TEXT,
		address   TEXT
	)`,
}
