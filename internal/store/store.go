// Package store manages the SQLite database holding calendars, events,
// sessions, humans and session↔participant links for calnotes.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. Multi-row mutations go through [Store.Apply],
// which runs a batch of [Op]s inside one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS calendars (
    id          TEXT    PRIMARY KEY,
    user_id     TEXT    NOT NULL,
    created_at  TEXT    NOT NULL DEFAULT '',
    tracking_id TEXT    NOT NULL,
    name        TEXT    NOT NULL DEFAULT '',
    provider    TEXT    NOT NULL,
    enabled     INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_calendars_tracking ON calendars (provider, tracking_id);

CREATE TABLE IF NOT EXISTS events (
    id                   TEXT    PRIMARY KEY,
    user_id              TEXT    NOT NULL,
    created_at           TEXT    NOT NULL DEFAULT '',
    tracking_id          TEXT    NOT NULL DEFAULT '',
    calendar_id          TEXT    NOT NULL,
    title                TEXT    NOT NULL DEFAULT '',
    started_at           TEXT    NOT NULL,
    ended_at             TEXT    NOT NULL DEFAULT '',
    location             TEXT    NOT NULL DEFAULT '',
    meeting_link         TEXT    NOT NULL DEFAULT '',
    description          TEXT    NOT NULL DEFAULT '',
    recurrence_series_id TEXT    NOT NULL DEFAULT '',
    has_recurrence_rules INTEGER NOT NULL DEFAULT 0,
    is_all_day           INTEGER NOT NULL DEFAULT 0,
    ignored              INTEGER NOT NULL DEFAULT 0,
    note                 TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_started_at ON events (started_at);

CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT    PRIMARY KEY,
    user_id          TEXT    NOT NULL,
    created_at       TEXT    NOT NULL DEFAULT '',
    event_id         TEXT    NOT NULL DEFAULT '',
    title            TEXT    NOT NULL DEFAULT '',
    raw_md           TEXT    NOT NULL DEFAULT '',
    enhanced_md      TEXT    NOT NULL DEFAULT '',
    has_transcript   INTEGER NOT NULL DEFAULT 0,
    event_json       TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_event_id ON sessions (event_id) WHERE event_id != '';

CREATE TABLE IF NOT EXISTS humans (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT '',
    name       TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS session_participants (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL,
    human_id   TEXT NOT NULL,
    source     TEXT NOT NULL DEFAULT 'manual'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_session_participants_pair ON session_participants (session_id, human_id);
`

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed local repository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Apply runs ops in order inside a single transaction. Either every op is
// committed or none is.
func (s *Store) Apply(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := formatTime(s.now())
	for i, op := range ops {
		if err := op.apply(ctx, tx, stamp); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scan helpers can be reused.
type scanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed-width so stored timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// parseColumn parses a stored timestamp and names the row and column when
// the value is corrupt.
func parseColumn(what, id, column, s string) (time.Time, error) {
	t, err := parseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %s: invalid %s %q: %w", what, id, column, s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// expectOneRow turns a zero-row UPDATE/DELETE into ErrNotFound.
func expectOneRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected for %s %q: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return nil
}
