package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour of the queue store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported queue driver %q (want sqlite or postgres)", driver)
	}
}

// Rebind rewrites ? placeholders into the dialect's native form.
// Queries are expected not to contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
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

// LockClause returns the row-locking suffix used when claiming a job.
func (d Dialect) LockClause() string {
	if d == DialectPostgres {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}

// Options selects and locates the queue store.
type Options struct {
	Driver string
	DSN    string
}

// Open connects to the queue store described by opts and ensures the schema
// exists. For sqlite the DSN is a file path; for postgres a connection URL.
func Open(ctx context.Context, opts Options) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(opts.Driver)
	if err != nil {
		return nil, "", err
	}
	if opts.DSN == "" {
		return nil, "", fmt.Errorf("%s dsn is empty", dialect)
	}

	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		db, err = openSQLite(ctx, opts.DSN)
	case DialectPostgres:
		db, err = openPostgres(ctx, opts.DSN)
	}
	if err != nil {
		return nil, "", err
	}

	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, _, err := Open(ctx, Options{Driver: string(DialectSQLite), DSN: path})
	return db, err
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if err := CheckLocalFilesystem(path); err != nil {
		return nil, err
	}

	// Pragmas ride on the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Bootstrap creates tables/indexes if missing. The DDL sticks to TEXT and
// BIGINT so the same statements run on sqlite and postgres.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_queue (
  id            TEXT PRIMARY KEY,
  queue         TEXT NOT NULL,
  func          TEXT NOT NULL,
  args          TEXT,
  kwargs        TEXT,
  description   TEXT,
  status        TEXT NOT NULL,
  timeout_s     BIGINT NOT NULL,
  result_ttl_s  BIGINT NOT NULL,
  ttl_s         BIGINT NOT NULL,
  result        TEXT,
  last_error    TEXT,
  worker_name   TEXT,
  created_at    TEXT NOT NULL,
  started_at    TEXT,
  ended_at      TEXT
);`,
		`CREATE INDEX IF NOT EXISTS job_queue_queue_status_created_at_idx ON job_queue(queue, status, created_at);`,
		`CREATE INDEX IF NOT EXISTS job_queue_status_ended_at_idx ON job_queue(status, ended_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap queue store: %w", err)
		}
	}
	return nil
}
