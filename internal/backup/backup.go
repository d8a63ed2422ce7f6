// Package backup copies the whole database to dated files in a backup
// directory, rotates old copies and restores from them.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

var (
	ErrBackupNotFound  = errors.New("backup not found")
	ErrInvalidFilename = errors.New("invalid backup filename")
	ErrBackupExists    = errors.New("backup already exists")
)

const fileTimeLayout = "20060102_150405"

var filenamePattern = regexp.MustCompile(`^tools_\d{8}_\d{6}\.db$`)

// tables are copied in this order on restore so foreign keys hold.
var tables = []string{"tools", "tool_snapshots", "jobs"}

// Info describes one backup file.
type Info struct {
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
	SizeHuman string    `json:"size_human"`
}

// Service manages backups of one database.
type Service struct {
	db             *sql.DB
	dir            string
	maxGenerations int
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used to name backups.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service writing to dir and keeping at most
// maxGenerations files. maxGenerations below 1 means 7.
func NewService(db *sql.DB, dir string, maxGenerations int, opts ...Option) *Service {
	if maxGenerations < 1 {
		maxGenerations = 7
	}
	s := &Service{
		db:             db,
		dir:            dir,
		maxGenerations: maxGenerations,
		now:            time.Now,
		logger:         slog.Default().With("component", "backup"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateFilename rejects anything that is not a plain backup file name.
func ValidateFilename(name string) error {
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: path separators are not allowed", ErrInvalidFilename)
	}
	if !filenamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match tools_YYYYMMDD_HHMMSS.db", ErrInvalidFilename)
	}
	return nil
}

// Create writes a consistent copy of the database with VACUUM INTO,
// verifies it and rotates old backups.
func (s *Service) Create(ctx context.Context) (Info, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("creating backup directory: %w", err)
	}

	name := "tools_" + s.now().UTC().Format(fileTimeLayout) + ".db"
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrBackupExists, name)
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		os.Remove(path)
		return Info{}, fmt.Errorf("writing backup: %w", err)
	}
	if err := checkIntegrity(ctx, path); err != nil {
		os.Remove(path)
		return Info{}, err
	}

	info, err := s.stat(name)
	if err != nil {
		return Info{}, err
	}
	s.logger.Info("backup created", "filename", name, "size", info.SizeHuman)

	s.rotate()
	return info, nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("checking backup integrity: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup integrity check failed: %s", result)
	}
	return nil
}

func (s *Service) stat(name string) (Info, error) {
	fi, err := os.Stat(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}
	if err != nil {
		return Info{}, err
	}
	created, err := time.ParseInLocation(fileTimeLayout, strings.TrimSuffix(strings.TrimPrefix(name, "tools_"), ".db"), time.UTC)
	if err != nil {
		created = fi.ModTime().UTC()
	}
	return Info{
		Filename:  name,
		CreatedAt: created,
		SizeBytes: fi.Size(),
		SizeHuman: humanize.IBytes(uint64(fi.Size())),
	}, nil
}

// List returns backups newest first. A missing directory yields none.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	backups := []Info{}
	for _, e := range entries {
		if e.IsDir() || !filenamePattern.MatchString(e.Name()) {
			continue
		}
		info, err := s.stat(e.Name())
		if err != nil {
			continue
		}
		backups = append(backups, info)
	}
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].Filename > backups[j].Filename
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

func (s *Service) rotate() {
	backups, err := s.List()
	if err != nil {
		s.logger.Warn("listing backups for rotation failed", "error", err)
		return
	}
	if len(backups) <= s.maxGenerations {
		return
	}
	for _, b := range backups[s.maxGenerations:] {
		if err := os.Remove(filepath.Join(s.dir, b.Filename)); err != nil {
			s.logger.Warn("failed to rotate backup", "filename", b.Filename, "error", err)
			continue
		}
		s.logger.Info("rotated old backup", "filename", b.Filename)
	}
}

// Delete removes one backup file.
func (s *Service) Delete(name string) error {
	if err := ValidateFilename(name); err != nil {
		return err
	}
	if _, err := s.stat(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("deleting backup: %w", err)
	}
	s.logger.Info("backup deleted", "filename", name)
	return nil
}

// Restore replaces every row of the live database with the rows of the
// named backup. The copy runs in a single transaction: on any error the
// live database is left as it was.
func (s *Service) Restore(ctx context.Context, name string) error {
	if err := ValidateFilename(name); err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if _, err := s.stat(name); err != nil {
		return err
	}
	if err := checkIntegrity(ctx, path); err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS restore_src`, path); err != nil {
		return fmt.Errorf("attaching backup: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `DETACH DATABASE restore_src`); err != nil {
			s.logger.Warn("failed to detach backup", "error", err)
		}
	}()

	if err := checkSchemaVersion(ctx, conn); err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning restore: %w", err)
	}
	defer tx.Rollback()

	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, `DELETE FROM main.`+tables[i]); err != nil {
			return fmt.Errorf("clearing %s: %w", tables[i], err)
		}
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, `INSERT INTO main.`+t+` SELECT * FROM restore_src.`+t); err != nil {
			return fmt.Errorf("copying %s: %w", t, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO main.tools_fts(tools_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("rebuilding search index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing restore: %w", err)
	}

	s.logger.Info("database restored from backup", "filename", name)
	return nil
}

func checkSchemaVersion(ctx context.Context, conn *sql.Conn) error {
	var live, backup int
	if err := conn.QueryRowContext(ctx, `SELECT version FROM main.schema_migrations LIMIT 1`).Scan(&live); err != nil {
		return fmt.Errorf("reading live schema version: %w", err)
	}
	if err := conn.QueryRowContext(ctx, `SELECT version FROM restore_src.schema_migrations LIMIT 1`).Scan(&backup); err != nil {
		return fmt.Errorf("reading backup schema version: %w", err)
	}
	if live != backup {
		return fmt.Errorf("backup schema version %d does not match database version %d", backup, live)
	}
	return nil
}
