package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dqworkbench/dqsync/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	succeeded   INTEGER NOT NULL,
	first_error TEXT NOT NULL,
	summary     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);
`

// Store keeps the most recent run summaries.
type Store struct {
	db   *sql.DB
	keep int
}

// Open opens or creates the database at path. Only the newest keep runs are
// retained.
func Open(path string, keep int) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db, keep: max(keep, 1)}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record saves sum and prunes older runs.
func (s *Store) Record(ctx context.Context, sum types.RunSummary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("history: encode summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at, finished_at, succeeded, first_error, summary) VALUES (?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.StartedAt.UTC(), sum.FinishedAt.UTC(), sum.Succeeded(), sum.FirstError, string(data))
	if err != nil {
		return fmt.Errorf("history: insert %s: %w", sum.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)`, s.keep)
	if err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return tx.Commit()
}

// Recent returns up to n summaries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]types.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT summary FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []types.RunSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		var sum types.RunSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, fmt.Errorf("history: decode: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get returns the summary of run id. ok is false when it is not stored.
func (s *Store) Get(ctx context.Context, id string) (sum types.RunSummary, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT summary FROM runs WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return sum, false, nil
	}
	if err != nil {
		return sum, false, fmt.Errorf("history: get %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return sum, false, fmt.Errorf("history: decode %s: %w", id, err)
	}
	return sum, true, nil
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}
