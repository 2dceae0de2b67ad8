package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/naka-gawa/repo-miner/internal/domain"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  finished_at TEXT NOT NULL,
  window_start TEXT NOT NULL,
  window_end TEXT NOT NULL,
  window_months INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS repositories (
  run_id TEXT NOT NULL REFERENCES runs(id),
  position INTEGER NOT NULL,
  repository TEXT NOT NULL,
  accepted INTEGER NOT NULL,
  PRIMARY KEY (run_id, repository)
)`,
	`CREATE TABLE IF NOT EXISTS commits (
  run_id TEXT NOT NULL REFERENCES runs(id),
  repository TEXT NOT NULL,
  position INTEGER NOT NULL,
  sha TEXT NOT NULL,
  committed_at TEXT NOT NULL,
  message TEXT NOT NULL,
  PRIMARY KEY (run_id, repository, sha)
)`,
	`CREATE INDEX IF NOT EXISTS idx_commits_repository ON commits(repository)`,
}

// SQLiteStore exports runs to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun stores one run and its outcomes in a single transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, runID uuid.UUID, window domain.Window, result domain.EvaluationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, finished_at, window_start, window_end, window_months) VALUES (?, ?, ?, ?, ?)`,
		runID.String(),
		time.Now().UTC().Format(time.RFC3339),
		window.Start.Format(time.RFC3339),
		window.End.Format(time.RFC3339),
		window.Months,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	repoStmt, err := tx.PrepareContext(ctx, `INSERT INTO repositories (run_id, position, repository, accepted) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing repository insert: %w", err)
	}
	defer repoStmt.Close()
	commitStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO commits (run_id, repository, position, sha, committed_at, message) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing commit insert: %w", err)
	}
	defer commitStmt.Close()

	for i, o := range result {
		accepted := 0
		if o.Status == domain.StatusAccepted {
			accepted = 1
		}
		if _, err := repoStmt.ExecContext(ctx, runID.String(), i, o.Repository.String(), accepted); err != nil {
			return fmt.Errorf("inserting repository %s: %w", o.Repository, err)
		}
		if accepted == 0 {
			continue
		}
		for j, c := range o.Commits {
			if _, err := commitStmt.ExecContext(ctx, runID.String(), o.Repository.String(), j, c.SHA, c.Date.UTC().Format(time.RFC3339), c.Message); err != nil {
				return fmt.Errorf("inserting commit %s of %s: %w", c.SHA, o.Repository, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}
