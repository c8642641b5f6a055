package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sawtlabs/tahrir/internal/pipeline"
)

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type mockRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *mockRows) Close()                                       {}
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *float64:
			*d = v.(float64)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		case *uuid.UUID:
			*d = v.(uuid.UUID)
		default:
			return errors.New("scan: unsupported destination type")
		}
	}
	return nil
}

// mockTx implements pgx.Tx, recording executed statements.
type mockTx struct {
	queryRowFunc func(sql string, args ...any) pgx.Row
	execFunc     func(sql string, args ...any) (pgconn.CommandTag, error)

	execSQL    []string
	committed  bool
	rolledBack bool
}

func (t *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *mockTx) Commit(ctx context.Context) error          { t.committed = true; return nil }
func (t *mockTx) Rollback(ctx context.Context) error        { t.rolledBack = true; return nil }
func (t *mockTx) CopyFrom(ctx context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *mockTx) SendBatch(ctx context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *mockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *mockTx) Prepare(ctx context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return &mockRows{}, nil
}
func (t *mockTx) Conn() *pgx.Conn { return nil }

func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if t.queryRowFunc != nil {
		return t.queryRowFunc(sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return nil }}
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execSQL = append(t.execSQL, sql)
	if t.execFunc != nil {
		return t.execFunc(sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// mockDB implements the DB interface.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	tx           *mockTx
}

func (db *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.queryRowFunc(ctx, sql, args...)
}

func (db *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.queryFunc(ctx, sql, args...)
}

func (db *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if db.execFunc != nil {
		return db.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (db *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if db.tx == nil {
		return nil, errors.New("begin not configured")
	}
	return db.tx, nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func testRun() *Run {
	return &Run{
		ID:                uuid.New(),
		SourceName:        "call-0142.wav",
		FullRawText:       "عايز احجز رحله",
		FullCorrectedText: "عايز أحجز رحلة.",
		ChunkCount:        3,
		DurationSeconds:   45,
		ProcessingSeconds: 2.5,
		Segments: []pipeline.Segment{
			{Index: 0, RawText: "عايز احجز", CorrectedText: "عايز أحجز", Confidence: 0.92, Tier: "AUTO"},
			{Index: 2, RawText: "رحله", CorrectedText: "رحلة.", Confidence: 0.75, Tier: "SUGGEST"},
		},
	}
}

func TestSaveRun_CommitsRunAndSegments(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tx := &mockTx{
		queryRowFunc: func(sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*time.Time) = now
				return nil
			}}
		},
	}
	s := NewPostgresStore(&mockDB{tx: tx})

	run := testRun()
	if err := s.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if !tx.committed {
		t.Error("transaction was not committed")
	}
	if len(tx.execSQL) != 2 {
		t.Fatalf("segment inserts = %d, want 2", len(tx.execSQL))
	}
	for _, sql := range tx.execSQL {
		if !strings.Contains(sql, "transcription_segments") {
			t.Errorf("unexpected exec statement: %s", sql)
		}
	}
	if !run.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", run.CreatedAt, now)
	}
}

func TestSaveRun_SegmentErrorRollsBack(t *testing.T) {
	t.Parallel()

	tx := &mockTx{
		queryRowFunc: func(sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*time.Time) = time.Now()
				return nil
			}}
		},
		execFunc: func(sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("disk full")
		},
	}
	s := NewPostgresStore(&mockDB{tx: tx})

	if err := s.SaveRun(context.Background(), testRun()); err == nil {
		t.Fatal("SaveRun should propagate the segment insert error")
	}
	if tx.committed {
		t.Error("transaction must not commit after a segment insert failure")
	}
	if !tx.rolledBack {
		t.Error("transaction was not rolled back")
	}
}

func TestSaveRun_DuplicateID(t *testing.T) {
	t.Parallel()

	tx := &mockTx{
		queryRowFunc: func(sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				return &pgconn.PgError{Code: "23505"}
			}}
		},
	}
	s := NewPostgresStore(&mockDB{tx: tx})

	err := s.SaveRun(context.Background(), testRun())
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("SaveRun duplicate = %v, want already-exists error", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	s := NewPostgresStore(db)

	run, err := s.GetRun(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run != nil {
		t.Errorf("GetRun(missing) = %+v, want nil", run)
	}
}

func TestGetRun_ScansRunAndSegments(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	now := time.Now()
	db := &mockDB{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*uuid.UUID) = id
				*dest[1].(*string) = "call-0142.wav"
				*dest[2].(*string) = "raw"
				*dest[3].(*string) = "corrected"
				*dest[4].(*int) = 3
				*dest[5].(*float64) = 45.0
				*dest[6].(*float64) = 2.5
				*dest[7].(*time.Time) = now
				return nil
			}}
		},
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &mockRows{data: [][]any{
				{0, "عايز احجز", "عايز أحجز", 0.92, "AUTO", false},
				{2, "رحله", "رحلة.", 0.75, "SUGGEST", true},
			}}, nil
		},
	}
	s := NewPostgresStore(db)

	run, err := s.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.ID != id || run.ChunkCount != 3 {
		t.Errorf("run = %+v", run)
	}
	if len(run.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(run.Segments))
	}
	if run.Segments[1].Index != 2 || !run.Segments[1].NeedsReview {
		t.Errorf("segment[1] = %+v", run.Segments[1])
	}
}

func TestListRuns_AppliesDefaultLimit(t *testing.T) {
	t.Parallel()

	var gotLimit any
	db := &mockDB{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotLimit = args[0]
			return &mockRows{}, nil
		},
	}
	s := NewPostgresStore(db)

	if _, err := s.ListRuns(context.Background(), 0); err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if gotLimit != defaultListLimit {
		t.Errorf("limit = %v, want %d", gotLimit, defaultListLimit)
	}
}

func TestMigrate_PropagatesError(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("permission denied")
		},
	}
	s := NewPostgresStore(db)

	if err := s.Migrate(context.Background()); err == nil {
		t.Error("Migrate should propagate exec errors")
	}
}
