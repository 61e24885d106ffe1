// Package postgres is a PostgreSQL-backed [reportstore.Store].
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/editscore/internal/batch"
	"github.com/MrWong99/editscore/internal/reportstore"
	"github.com/MrWong99/editscore/internal/wer"
	"github.com/MrWong99/editscore/pkg/align"
)

// Schema is the SQL DDL for the run tables. Execute it via [Store.Migrate]
// or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS score_runs (
    id         UUID PRIMARY KEY,
    mode       TEXT NOT NULL,
    corpus     JSONB,
    skipped    INTEGER NOT NULL DEFAULT 0,
    elapsed_ns BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS score_run_rows (
    run_id   UUID NOT NULL REFERENCES score_runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    row_id   TEXT NOT NULL,
    result   JSONB,
    error    TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_score_runs_created ON score_runs(created_at);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ reportstore.Store = (*Store)(nil)

// Store persists runs in two tables: one row per run in score_runs and one
// row per scored sentence in score_run_rows.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// New returns a [Store] over db. The caller is responsible for calling
// [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to the database at dsn, verifies the connection and applies
// [Schema].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("reportstore postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("reportstore postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reportstore postgres: ping: %w", err)
	}

	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool opened by [Open]. It is a no-op for
// stores created with [New].
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate executes the [Schema] DDL.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("reportstore postgres: migrate: %w", err)
	}
	return nil
}

// SaveRun inserts the run and all of its rows in one batch. pgx sends a
// batch as one pipeline closed by a single Sync, which PostgreSQL executes as
// an implicit transaction, so a failing row leaves no partial run behind.
func (s *Store) SaveRun(ctx context.Context, run *reportstore.Run) error {
	if run == nil || run.Summary == nil {
		return errors.New("reportstore postgres: run without summary")
	}
	sum := run.Summary

	var corpus []byte
	if sum.Corpus != nil {
		var err error
		if corpus, err = json.Marshal(sum.Corpus); err != nil {
			return fmt.Errorf("reportstore postgres: marshal corpus: %w", err)
		}
	}

	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO score_runs (id, mode, corpus, skipped, elapsed_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(sum.Mode), corpus, sum.Skipped, int64(sum.Elapsed), run.CreatedAt,
	)
	for i, row := range sum.Rows {
		var result []byte
		if row.Result != nil {
			var err error
			if result, err = json.Marshal(row.Result); err != nil {
				return fmt.Errorf("reportstore postgres: marshal row %q: %w", row.ID, err)
			}
		}
		b.Queue(`
			INSERT INTO score_run_rows (run_id, position, row_id, result, error)
			VALUES ($1, $2, $3, $4, $5)`,
			run.ID, i, row.ID, result, row.Error,
		)
	}

	br := s.db.SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isDuplicateKeyError(err) {
				return fmt.Errorf("reportstore postgres: run %q already exists", run.ID)
			}
			return fmt.Errorf("reportstore postgres: save run %q: %w", run.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("reportstore postgres: save run %q: %w", run.ID, err)
	}
	return nil
}

// Run loads the run with the given ID and its rows in input order.
func (s *Store) Run(ctx context.Context, id string) (*reportstore.Run, error) {
	const runQuery = `
		SELECT mode, corpus, skipped, elapsed_ns, created_at
		FROM score_runs
		WHERE id = $1`

	var (
		mode      string
		corpus    []byte
		skipped   int
		elapsedNs int64
		createdAt time.Time
	)
	err := s.db.QueryRow(ctx, runQuery, id).Scan(&mode, &corpus, &skipped, &elapsedNs, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reportstore postgres: run %q: %w", id, reportstore.ErrNotFound)
		}
		return nil, fmt.Errorf("reportstore postgres: get run %q: %w", id, err)
	}

	sum := &batch.Summary{
		Mode:    wer.Mode(mode),
		Skipped: skipped,
		Elapsed: time.Duration(elapsedNs),
		Rows:    []batch.RowResult{},
	}
	if corpus != nil {
		sum.Corpus = &align.Report{}
		if err := json.Unmarshal(corpus, sum.Corpus); err != nil {
			return nil, fmt.Errorf("reportstore postgres: decode corpus of %q: %w", id, err)
		}
	}

	const rowsQuery = `
		SELECT row_id, result, error
		FROM score_run_rows
		WHERE run_id = $1
		ORDER BY position`

	rows, err := s.db.Query(ctx, rowsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("reportstore postgres: list rows of %q: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rr     batch.RowResult
			result []byte
		)
		if err := rows.Scan(&rr.ID, &result, &rr.Error); err != nil {
			return nil, fmt.Errorf("reportstore postgres: scan row of %q: %w", id, err)
		}
		if result != nil {
			rr.Result = &wer.Result{}
			if err := json.Unmarshal(result, rr.Result); err != nil {
				return nil, fmt.Errorf("reportstore postgres: decode row %q of %q: %w", rr.ID, id, err)
			}
		}
		sum.Rows = append(sum.Rows, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reportstore postgres: list rows of %q: %w", id, err)
	}

	return &reportstore.Run{ID: id, CreatedAt: createdAt, Summary: sum}, nil
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
