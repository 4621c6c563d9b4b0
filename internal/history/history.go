// Package history keeps a SQLite log of dispatched actions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Outcome values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Entry is one dispatched action.
type Entry struct {
	ID       int64         `json:"id"`
	Time     time.Time     `json:"time"`
	Action   string        `json:"action"`
	Keys     string        `json:"keys"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Recorder stores entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// ActionCount is a per-action tally.
type ActionCount struct {
	Action   string `json:"action"`
	Total    int64  `json:"total"`
	Failures int64  `json:"failures"`
}

// Store is the SQLite history database.
type Store struct {
	db    *sql.DB
	limit int
}

// Open opens or creates the database at path and runs migrations. When
// limit is positive, Record keeps at most limit rows.
func Open(path string, limit int) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps :memory: databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, limit: limit}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record inserts e, stamping it with the current time when unset, and
// prunes rows beyond the configured limit.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}

	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (timestamp_ns, action, keys, outcome, error, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time.UnixNano(), e.Action, e.Keys, e.Outcome, errText, int64(e.Duration),
	); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}

	if s.limit > 0 {
		if _, err := s.Prune(ctx, s.limit); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_ns, action, keys, outcome, error, duration_ns
		FROM actions ORDER BY timestamp_ns DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			ts      int64
			dur     int64
			errText sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Action, &e.Keys, &e.Outcome, &errText, &dur); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		e.Time = time.Unix(0, ts)
		e.Duration = time.Duration(dur)
		e.Error = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts tallies entries per action.
func (s *Store) Counts(ctx context.Context) ([]ActionCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, COUNT(*), SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END)
		FROM actions GROUP BY action ORDER BY action`, OutcomeError)
	if err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	defer rows.Close()

	var out []ActionCount
	for rows.Next() {
		var c ActionCount
		if err := rows.Scan(&c.Action, &c.Total, &c.Failures); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune deletes everything but the newest keep entries and returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM actions WHERE id NOT IN (
			SELECT id FROM actions ORDER BY timestamp_ns DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune actions: %w", err)
	}
	return res.RowsAffected()
}
