// Package store is the database layer for jus-connect. It runs on SQLite
// (modernc.org/sqlite) or Postgres (lib/pq) behind database/sql and owns the
// schema, migrations and CRUD for every entity.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint would be violated.
var ErrConflict = errors.New("conflict")

// ValidationError reports input rejected before it reaches the database.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Invalidf returns a ValidationError with a formatted message.
func Invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Store wraps the database connection.
type Store struct {
	conn    *sql.DB
	dialect Dialect
	dsn     string
}

// Options tunes how Open connects.
type Options struct {
	ConnectAttempts uint
	ConnectDelay    time.Duration
}

// Open opens the database for the given driver ("sqlite" or "postgres") and
// runs any pending migrations. SQLite files are created on demand.
func Open(driver, dsn string) (*Store, error) {
	return OpenContext(context.Background(), driver, dsn, Options{})
}

// OpenContext is Open with a context bounding the connection retries.
func OpenContext(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = 1
	}
	if opts.ConnectDelay == 0 {
		opts.ConnectDelay = 2 * time.Second
	}

	if dialect == DialectSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = retry.Do(
		func() error { return conn.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(opts.ConnectAttempts),
		retry.Delay(opts.ConnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("database not ready", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if dialect == DialectSQLite {
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
		conn.Exec("PRAGMA synchronous=NORMAL")
		conn.Exec("PRAGMA foreign_keys=ON")
	}

	s := &Store{conn: conn, dialect: dialect, dsn: dsn}

	if _, err := conn.ExecContext(ctx, dialect.expandSchema(schema)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if _, err := s.RunMigrations(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if err := s.createDataIndexes(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

// createDataIndexes adds the lookup indexes whose columns exist. Legacy
// tables keep working unindexed.
func (s *Store) createDataIndexes(ctx context.Context) error {
	for _, ix := range dataIndexes {
		cols, err := s.TableColumns(ctx, ix.Table)
		if err != nil {
			return fmt.Errorf("create index %s: %w", ix.Name, err)
		}
		if !cols[ix.Column] {
			slog.Warn("index skipped, column missing", "index", ix.Name, "table", ix.Table, "column", ix.Column)
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", ix.Name, ix.Table, ix.Column)
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", ix.Name, err)
		}
	}
	return nil
}

// Dialect reports which SQL dialect the store speaks.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close checkpoints the WAL (SQLite) and closes the database connection.
func (s *Store) Close() error {
	if s.dialect == DialectSQLite {
		s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.conn.Close()
}

// QueryContext runs a read query written with ? placeholders.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

// ExecContext runs a statement written with ? placeholders.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

// withTx runs fn inside a transaction; fn's statements must be rebound by the caller via tx helpers.
func (s *Store) withTx(ctx context.Context, fn func(tx *txn) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txn{tx: sqlTx, dialect: s.dialect, ctx: ctx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txn struct {
	tx      *sql.Tx
	dialect Dialect
	ctx     context.Context
}

func (t *txn) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, t.dialect.Rebind(query), args...)
}

// RunMigrations runs any pending database migrations.
func (s *Store) RunMigrations(ctx context.Context) (int, error) {
	if _, err := s.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	currentVersion := s.SchemaVersion(ctx)
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version > currentVersion && currentVersion > 0 {
			if _, err := s.conn.ExecContext(ctx, s.dialect.expandSchema(m.SQL)); err != nil {
				return migrationsRun, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := s.setSchemaVersion(ctx, m.Version); err != nil {
				return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
			}
			migrationsRun++
		}
	}

	// Fresh databases get the full schema up front.
	if currentVersion == 0 {
		if err := s.setSchemaVersion(ctx, SchemaVersion); err != nil {
			return migrationsRun, err
		}
	}

	return migrationsRun, nil
}

// SchemaVersion returns the recorded schema version, or 0 when unset.
func (s *Store) SchemaVersion(ctx context.Context) int {
	var version string
	err := s.queryRow(ctx, "SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO schema_info (key, value) VALUES ('version', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", version))
	return err
}

// generateID creates a prefixed ID with 16 random hex chars.
func generateID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}

// NewID returns a fresh prefixed ID for rows written outside the Store.
func NewID(prefix string) (string, error) {
	return generateID(prefix)
}

func mustID(prefix string) string {
	id, err := generateID(prefix)
	if err != nil {
		// crypto/rand failure is fatal
		panic("generate id: " + err.Error())
	}
	return id
}

// normalizeLimit clamps list limits to [1, 500] with a default of 100.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// affected maps a zero-row update to ErrNotFound.
func affected(res sql.Result, what, id string) error {
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
