// Package sqlite is an embedded attendance store for single-site deployments
// and tests. It implements the same repository interfaces as the PostgreSQL
// store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/clock"
	_ "modernc.org/sqlite"
)

const currentVersion = 1

// timestamps are stored as UTC RFC3339 text, dates as YYYY-MM-DD
const (
	timestampLayout = time.RFC3339Nano
	dateLayout      = "2006-01-02"
)

// DefaultQueryTimeout bounds each repository call unless WithQueryTimeout
// overrides it.
const DefaultQueryTimeout = 5 * time.Second

type Store struct {
	db           *sql.DB
	loc          *time.Location
	clock        clock.Clock
	queryTimeout time.Duration
}

type Option func(*Store)

// WithLocation sets the timezone in which the store decides which calendar
// day is "today". Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces the database clock as the source of the evaluation
// instant. Tests use it with a fake clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithQueryTimeout bounds every repository call.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, loc: time.UTC, queryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory(opts ...Option) (*Store, error) {
	return New(":memory:", opts...)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Now returns the store's clock.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	if s.clock != nil {
		return s.clock.Now().UTC(), nil
	}
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`).Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("read store clock: %w", err)
	}
	now, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse store clock %q: %w", raw, err)
	}
	return now, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// today returns the calendar day of now in the store's location, formatted as
// stored.
func (s *Store) today(now time.Time) string {
	return now.In(s.loc).Format(dateLayout)
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS shifts (
		id            TEXT PRIMARY KEY,
		company_id    TEXT NOT NULL,
		name          TEXT NOT NULL,
		start_time    TEXT NOT NULL,
		end_time      TEXT NOT NULL,
		grace_minutes INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	);

	CREATE TABLE IF NOT EXISTS employees (
		id          TEXT PRIMARY KEY,
		company_id  TEXT NOT NULL,
		full_name   TEXT NOT NULL,
		department  TEXT NOT NULL DEFAULT '',
		location    TEXT NOT NULL DEFAULT '',
		shift_id    TEXT REFERENCES shifts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_employees_company ON employees(company_id, department, location);

	CREATE TABLE IF NOT EXISTS attendance_sessions (
		id          TEXT PRIMARY KEY,
		company_id  TEXT NOT NULL,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		date        TEXT NOT NULL,
		shift_id    TEXT REFERENCES shifts(id),
		clock_in    TEXT,
		clock_out   TEXT,
		status      TEXT NOT NULL DEFAULT 'not_started',
		created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		UNIQUE(employee_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_company_date ON attendance_sessions(company_id, date);

	CREATE TABLE IF NOT EXISTS attendance_breaks (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL REFERENCES attendance_sessions(id) ON DELETE CASCADE,
		break_start TEXT NOT NULL,
		break_end   TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_breaks_session ON attendance_breaks(session_id);
	`
	_, err := s.db.Exec(ddl)
	return err
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatNullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func parseNullTimestamp(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(timestampLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", v.String, err)
	}
	return &t, nil
}
