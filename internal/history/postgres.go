package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres persists runs to PostgreSQL through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to url, verifies the connection and runs migrations.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres history: connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("postgres history connected", "database", poolConfig.ConnConfig.Database)
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			folder      TEXT NOT NULL,
			output      TEXT NOT NULL DEFAULT '',
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_files (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name     TEXT NOT NULL,
			valid    BOOLEAN NOT NULL,
			code     TEXT NOT NULL DEFAULT '',
			reason   TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun stores run and its files atomically. File rows are sent as one
// batch.
func (p *Postgres) RecordRun(ctx context.Context, run Run) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx,
		`INSERT INTO runs (id, kind, folder, output, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID.String(), run.Kind, run.Folder, run.Output, run.StartedAt, run.FinishedAt,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if len(run.Files) > 0 {
		batch := &pgx.Batch{}
		for i, f := range run.Files {
			batch.Queue(
				`INSERT INTO run_files (run_id, position, name, valid, code, reason) VALUES ($1, $2, $3, $4, $5, $6)`,
				run.ID.String(), i, f.Name, f.Valid, f.Code, f.Reason,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for _, f := range run.Files {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert file %s: %w", f.Name, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (p *Postgres) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, kind, folder, output, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var (
			id  string
			run Run
		)
		if err := row.Scan(&id, &run.Kind, &run.Folder, &run.Output, &run.StartedAt, &run.FinishedAt); err != nil {
			return Run{}, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return Run{}, fmt.Errorf("run id %q: %w", id, err)
		}
		run.ID = parsed
		return run, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(runs))
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID.String()
		index[ids[i]] = i
	}

	fileRows, err := p.pool.Query(ctx,
		`SELECT run_id, name, valid, code, reason FROM run_files
		 WHERE run_id = ANY($1) ORDER BY run_id, position`, ids)
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
func (p *Postgres) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM run_files WHERE run_id IN (SELECT id FROM runs WHERE started_at < $1)`, cutoff,
	); err != nil {
		return 0, fmt.Errorf("delete run files: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
