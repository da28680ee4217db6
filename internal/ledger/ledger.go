// Package ledger maintains a SQLite-backed rollup of pass-rate trends per
// qualified test name, fed asynchronously from history-store appends.
// This is derived, rebuildable data — the JSONL history store remains the
// system of record; the ledger exists only to answer "how has this test
// trended" without re-scanning every history file: database/sql plus the
// sqlite3 driver, schema-on-open, ORDER BY-based read queries.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

// Entry is one rollup row: aggregate pass-rate stats for a qualified test
// name within a time window.
type Entry struct {
	QualifiedName      string
	WindowStart        time.Time
	Total              int
	Passed             int
	AvgDurationSeconds float64
	AvgTokens          float64
}

// Store is a SQLite-backed ledger. Feed results to it via Record (called
// synchronously) or by running Consume against a channel of results (the
// asynchronous path History wires up).
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the ledger database at dbPath ("" or
// ":memory:" for an ephemeral in-process ledger, e.g. in tests).
func NewStore(dbPath string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		dbPath = ":memory:"
	}

	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ledger: create db dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: ping db: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS ledger_windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			qualified_name TEXT NOT NULL,
			window_start INTEGER NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			passed INTEGER NOT NULL DEFAULT 0,
			duration_sum REAL NOT NULL DEFAULT 0,
			token_sum INTEGER NOT NULL DEFAULT 0,
			UNIQUE(qualified_name, window_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_qualified_name ON ledger_windows(qualified_name)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("ledger: init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// windowSize buckets rollups into hour-aligned windows, coarse enough that
// a dashboard trend line stays small but fine enough to show intra-day
// movement.
const windowSize = time.Hour

func windowFor(t time.Time) time.Time {
	return t.UTC().Truncate(windowSize)
}

// Record folds one TestResult into its time window's rollup row, creating
// the row if this is the first result observed in that window.
func (s *Store) Record(ctx context.Context, r domain.TestResult) error {
	if s == nil || s.db == nil {
		return errors.New("ledger: nil store")
	}
	qn := strings.TrimSpace(r.QualifiedName)
	if qn == "" {
		return errors.New("ledger: empty qualified name")
	}

	at := r.CompletedAt
	if at.IsZero() {
		at = time.Now()
	}
	window := windowFor(at)

	passedDelta := 0
	if r.Passed {
		passedDelta = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_windows (qualified_name, window_start, total, passed, duration_sum, token_sum)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(qualified_name, window_start) DO UPDATE SET
			total = total + 1,
			passed = passed + excluded.passed,
			duration_sum = duration_sum + excluded.duration_sum,
			token_sum = token_sum + excluded.token_sum
	`, qn, window.Unix(), passedDelta, r.DurationSeconds, r.TotalTokens)
	if err != nil {
		return fmt.Errorf("ledger: record: %w", err)
	}
	return nil
}

// Consume drains results, from a channel fed by the history store, and
// records each into the ledger until results is closed or ctx is done.
// Recording errors are swallowed beyond logging via errFn, since the
// ledger is derived data: a missed rollup never corrupts the history
// store and is repaired by Rebuild.
func (s *Store) Consume(ctx context.Context, results <-chan domain.TestResult, onErr func(error)) {
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return
			}
			if err := s.Record(ctx, r); err != nil && onErr != nil {
				onErr(err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Trend returns every rollup window for qualifiedName, oldest first.
func (s *Store) Trend(ctx context.Context, qualifiedName string) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger: nil store")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT qualified_name, window_start, total, passed, duration_sum, token_sum
		FROM ledger_windows
		WHERE qualified_name = ?
		ORDER BY window_start ASC
	`, qualifiedName)
	if err != nil {
		return nil, fmt.Errorf("ledger: query trend: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			qn                    string
			windowUnix            int64
			total, passed         int
			durationSum, tokenSum float64
		)
		if err := rows.Scan(&qn, &windowUnix, &total, &passed, &durationSum, &tokenSum); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		e := Entry{
			QualifiedName: qn,
			WindowStart:   time.Unix(windowUnix, 0).UTC(),
			Total:         total,
			Passed:        passed,
		}
		if total > 0 {
			e.AvgDurationSeconds = durationSum / float64(total)
			e.AvgTokens = tokenSum / float64(total)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: rows: %w", err)
	}
	return out, nil
}

// Rebuild drops and recomputes the entire ledger from history, the
// recovery path for "derived, rebuildable data": if the SQLite file is
// lost or corrupted, replaying every stored TestResult restores it.
func (s *Store) Rebuild(ctx context.Context, all func(yield func(domain.TestResult) bool)) error {
	if s == nil || s.db == nil {
		return errors.New("ledger: nil store")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ledger_windows`); err != nil {
		return fmt.Errorf("ledger: clear: %w", err)
	}
	var recordErr error
	all(func(r domain.TestResult) bool {
		if err := s.Record(ctx, r); err != nil {
			recordErr = err
			return false
		}
		return true
	})
	return recordErr
}
