package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sawtlabs/tahrir/internal/pipeline"
)

// Schema is the SQL DDL for the run tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS transcription_runs (
    id                  UUID PRIMARY KEY,
    source_name         TEXT NOT NULL DEFAULT '',
    full_raw_text       TEXT NOT NULL DEFAULT '',
    full_corrected_text TEXT NOT NULL DEFAULT '',
    chunk_count         INTEGER NOT NULL DEFAULT 0,
    duration_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
    processing_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS transcription_segments (
    run_id         UUID NOT NULL REFERENCES transcription_runs(id) ON DELETE CASCADE,
    idx            INTEGER NOT NULL,
    raw_text       TEXT NOT NULL DEFAULT '',
    corrected_text TEXT NOT NULL DEFAULT '',
    confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
    tier           TEXT NOT NULL DEFAULT '',
    needs_review   BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (run_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_transcription_runs_created ON transcription_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transcription_segments_review ON transcription_segments(run_id) WHERE needs_review;
`

// defaultListLimit caps ListRuns when the caller does not specify a limit.
const defaultListLimit = 50

// DB is the database interface used by [PostgresStore]. *pgxpool.Pool
// satisfies it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore on the given pool or connection.
// Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the run tables and indexes if
// they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveRun inserts the run and its segments in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const runQuery = `
		INSERT INTO transcription_runs (
			id, source_name, full_raw_text, full_corrected_text,
			chunk_count, duration_seconds, processing_seconds
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`

	err = tx.QueryRow(ctx, runQuery,
		run.ID, run.SourceName, run.FullRawText, run.FullCorrectedText,
		run.ChunkCount, run.DurationSeconds, run.ProcessingSeconds,
	).Scan(&run.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("store: run %s already exists", run.ID)
		}
		return fmt.Errorf("store: save run: %w", err)
	}

	const segQuery = `
		INSERT INTO transcription_segments (
			run_id, idx, raw_text, corrected_text, confidence, tier, needs_review
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	for _, seg := range run.Segments {
		if _, err := tx.Exec(ctx, segQuery,
			run.ID, seg.Index, seg.RawText, seg.CorrectedText,
			seg.Confidence, seg.Tier, seg.NeedsReview,
		); err != nil {
			return fmt.Errorf("store: save segment %d: %w", seg.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// GetRun retrieves a run and its segments. Returns (nil, nil) when the run
// does not exist.
func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	const runQuery = `
		SELECT id, source_name, full_raw_text, full_corrected_text,
		       chunk_count, duration_seconds, processing_seconds, created_at
		FROM transcription_runs
		WHERE id = $1`

	var run Run
	err := s.db.QueryRow(ctx, runQuery, id).Scan(
		&run.ID, &run.SourceName, &run.FullRawText, &run.FullCorrectedText,
		&run.ChunkCount, &run.DurationSeconds, &run.ProcessingSeconds, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get run %s: %w", id, err)
	}

	const segQuery = `
		SELECT idx, raw_text, corrected_text, confidence, tier, needs_review
		FROM transcription_segments
		WHERE run_id = $1
		ORDER BY idx`

	rows, err := s.db.Query(ctx, segQuery, id)
	if err != nil {
		return nil, fmt.Errorf("store: get segments for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var seg pipeline.Segment
		if err := rows.Scan(
			&seg.Index, &seg.RawText, &seg.CorrectedText,
			&seg.Confidence, &seg.Tier, &seg.NeedsReview,
		); err != nil {
			return nil, fmt.Errorf("store: scan segment: %w", err)
		}
		run.Segments = append(run.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get segments for %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first, without segments.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	const query = `
		SELECT id, source_name, full_raw_text, full_corrected_text,
		       chunk_count, duration_seconds, processing_seconds, created_at
		FROM transcription_runs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.SourceName, &run.FullRawText, &run.FullCorrectedText,
			&run.ChunkCount, &run.DurationSeconds, &run.ProcessingSeconds, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
