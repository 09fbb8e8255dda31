// Package db is the conversation store: conversation history plus the
// stage and provider call records that feed analytics. SQLite is the default;
// a postgres:// DSN selects PostgreSQL through pgx.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a conversation does not exist for the caller.
var ErrNotFound = errors.New("not found")

// Dialect names.
const (
	SQLite   = "sqlite3"
	Postgres = "postgres"
)

// timeFormat is how every timestamp column is written.
const timeFormat = "2006-01-02 15:04:05"

// DB wraps the database connection.
type DB struct {
	conn    *sql.DB
	dialect string
	now     func() time.Time
}

// Open opens or creates the database named by dsn. postgres:// and
// postgresql:// URLs use pgx; anything else is a SQLite path.
func Open(dsn string) (*DB, error) {
	if isPostgres(dsn) {
		conn, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := conn.Ping(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return &DB{conn: conn, dialect: Postgres, now: time.Now}, nil
	}
	return openSQLite(dsn)
}

func openSQLite(path string) (*DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &DB{conn: conn, dialect: SQLite, now: time.Now}, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Dialect reports which driver the DB uses.
func (d *DB) Dialect() string {
	return d.dialect
}

// Rebind rewrites ? placeholders for the active dialect.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.conn.ExecContext(ctx, d.Rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.conn.QueryContext(ctx, d.Rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn.QueryRowContext(ctx, d.Rebind(query), args...)
}

func (d *DB) timestamp() string {
	return d.now().UTC().Format(timeFormat)
}

// schemaV1 is applied statement by statement. {{id}} expands to the
// dialect's auto-increment primary key.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS conversations (
    id           {{id}},
    user_id      TEXT NOT NULL,
    project_name TEXT,
    project_plan TEXT,
    created_at   TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
    id              {{id}},
    conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    type            TEXT NOT NULL,
    data            TEXT,
    created_at      TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id)`,
	`CREATE TABLE IF NOT EXISTS stage_runs (
    id          {{id}},
    run_id      TEXT NOT NULL,
    stage       TEXT NOT NULL,
    attempt     INTEGER NOT NULL,
    outcome     TEXT NOT NULL CHECK(outcome IN ('success','fail','degraded')),
    duration_ms INTEGER NOT NULL,
    error       TEXT,
    created_at  TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_runs_stage ON stage_runs(stage, created_at)`,
	`CREATE TABLE IF NOT EXISTS llm_calls (
    id          {{id}},
    run_id      TEXT NOT NULL,
    provider    TEXT NOT NULL,
    agent       TEXT NOT NULL,
    attempt     INTEGER NOT NULL,
    status      TEXT NOT NULL CHECK(status IN ('success','rate_limited','error')),
    duration_ms INTEGER NOT NULL,
    waited_ms   INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    created_at  TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_calls_agent ON llm_calls(agent, created_at)`,
}

// tables in drop order.
var tables = []string{"llm_calls", "stage_runs", "messages", "conversations", "schema_version"}

func (d *DB) ddl(stmt string) string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.dialect == Postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(stmt, "{{id}}", id)
}

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	ctx := context.Background()
	var count int
	err := d.queryRow(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaV1 {
		if _, err := tx.ExecContext(ctx, d.ddl(stmt)); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, d.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (1, ?)"), d.timestamp()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
