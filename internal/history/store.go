// Package history keeps a SQLite ledger of finished query runs.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FileName is the ledger database name inside the data directory.
const FileName = "runs.db"

// Run is one ledger row.
type Run struct {
	ID         string
	SessionID  string
	Prompt     string
	State      string
	Messages   int
	CostUSD    float64
	Turns      int
	Tokens     int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Totals aggregates the ledger.
type Totals struct {
	Runs      int
	Failed    int
	Cancelled int
	CostUSD   float64
	Turns     int
	Tokens    int
}

// Ledger provides SQLite-backed persistence for runs.
type Ledger struct {
	db *sql.DB
}

// Open opens the SQLite database at dbPath and creates tables if they don't exist.
func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		state TEXT NOT NULL,
		messages INTEGER DEFAULT 0,
		cost_usd REAL DEFAULT 0,
		turns INTEGER DEFAULT 0,
		tokens INTEGER DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs (session_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs (started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Record inserts run, replacing any row with the same id.
func (l *Ledger) Record(run Run) error {
	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO runs
		 (id, session_id, prompt, state, messages, cost_usd, turns, tokens, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Prompt, run.State, run.Messages, run.CostUSD,
		run.Turns, run.Tokens, run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, session_id, prompt, state, messages, cost_usd, turns, tokens, error, started_at, finished_at`

// ListBySession returns the runs of one session, newest first. A limit of
// zero or less returns all of them.
func (l *Ledger) ListBySession(sessionID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.Query(
		`SELECT `+runColumns+` FROM runs
		 WHERE session_id = ?
		 ORDER BY started_at DESC, id
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return scanRuns(rows)
}

// Recent returns the latest runs across all sessions, newest first.
func (l *Ledger) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.Query(
		`SELECT `+runColumns+` FROM runs
		 ORDER BY started_at DESC, id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return scanRuns(rows)
}

// Totals aggregates every recorded run.
func (l *Ledger) Totals() (Totals, error) {
	var t Totals
	err := l.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN state = 'cancelled' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(cost_usd), 0),
		        COALESCE(SUM(turns), 0),
		        COALESCE(SUM(tokens), 0)
		 FROM runs`,
	).Scan(&t.Runs, &t.Failed, &t.Cancelled, &t.CostUSD, &t.Turns, &t.Tokens)
	if err != nil {
		return Totals{}, fmt.Errorf("sum runs: %w", err)
	}
	return t, nil
}

// DeleteSession removes every run of a session and returns how many were removed.
func (l *Ledger) DeleteSession(sessionID string) (int, error) {
	res, err := l.db.Exec(`DELETE FROM runs WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Prompt, &r.State, &r.Messages, &r.CostUSD,
			&r.Turns, &r.Tokens, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
