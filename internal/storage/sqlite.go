package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBFileName is the name of the database file inside the data directory.
const DBFileName = "toolshelf.db"

const (
	DefaultMaxSnapshots     = 20
	DefaultMaxSnapshotBytes = 10 * 1024 * 1024
)

// timeLayout is fixed-width so that lexical order of stored timestamps
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store wraps a SQLite database holding tools, their snapshots and the
// background job queue.
//
// The pool is limited to a single connection. Every transaction therefore
// runs alone, which is what serializes writers for a given tool.
type Store struct {
	db               *sql.DB
	path             string
	now              func() time.Time
	maxSnapshots     int
	maxSnapshotBytes int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxSnapshots sets the retention limit per tool. Values below 1 keep
// the default.
func WithMaxSnapshots(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.maxSnapshots = n
		}
	}
}

// WithMaxSnapshotBytes sets the content size limit for one snapshot.
func WithMaxSnapshotBytes(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.maxSnapshotBytes = n
		}
	}
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string, opts ...Option) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, DBFileName)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if dsn != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{
		db:               db,
		path:             dsn,
		now:              time.Now,
		maxSnapshots:     DefaultMaxSnapshots,
		maxSnapshotBytes: DefaultMaxSnapshotBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for whole-database operations such as
// backup and restore.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path, or ":memory:".
func (s *Store) Path() string {
	return s.path
}

// MaxSnapshots returns the per-tool retention limit.
func (s *Store) MaxSnapshots() int {
	return s.maxSnapshots
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	defer src.Close()

	drv, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	// m.Close is not called: the sqlite driver would close s.db with it.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// SchemaVersion returns the latest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	var dirty bool
	err := s.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&v, &dirty)
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

// inTx runs fn inside a transaction. fn must use tx for every statement:
// with a single pooled connection, touching s.db would block forever.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Parse(time.RFC3339Nano, v)
	}
	return t, nil
}
