package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite persists runs to a local SQLite database file.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database at path and runs migrations.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite history: database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; modernc serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("sqlite history opened", "path", path)
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			folder      TEXT NOT NULL,
			output      TEXT NOT NULL DEFAULT '',
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_files (
			run_id   TEXT NOT NULL REFERENCES runs(id),
			position INTEGER NOT NULL,
			name     TEXT NOT NULL,
			valid    INTEGER NOT NULL,
			code     TEXT NOT NULL DEFAULT '',
			reason   TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun stores run and its files in one transaction.
func (s *SQLite) RecordRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, kind, folder, output, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Kind, run.Folder, run.Output,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, f := range run.Files {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_files (run_id, position, name, valid, code, reason) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID.String(), i, f.Name, f.Valid, f.Code, f.Reason,
		); err != nil {
			return fmt.Errorf("insert file %s: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *SQLite) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, folder, output, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	index := make(map[string]int)
	for rows.Next() {
		var (
			id                    string
			run                   Run
			startedMs, finishedMs int64
		)
		if err := rows.Scan(&id, &run.Kind, &run.Folder, &run.Output, &startedMs, &finishedMs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		run.StartedAt = time.UnixMilli(startedMs).UTC()
		run.FinishedAt = time.UnixMilli(finishedMs).UTC()
		index[id] = len(runs)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	fileRows, err := s.db.QueryContext(ctx,
		`SELECT run_id, name, valid, code, reason FROM run_files
		 WHERE run_id IN (`+placeholders+`) ORDER BY run_id, position`, ids...)
	if err != nil {
		return nil, fmt.Errorf("query run files: %w", err)
	}
	defer fileRows.Close()

	for fileRows.Next() {
		var (
			runID string
			f     FileOutcome
		)
		if err := fileRows.Scan(&runID, &f.Name, &f.Valid, &f.Code, &f.Reason); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		if i, ok := index[runID]; ok {
			runs[i].Files = append(runs[i].Files, f)
		}
	}
	return runs, fileRows.Err()
}

// Prune deletes runs started before cutoff together with their files.
func (s *SQLite) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ms := cutoff.UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM run_files WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, ms,
	); err != nil {
		return 0, fmt.Errorf("delete run files: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, ms)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
