// Package store persists completed transcription runs.
//
// A run is the unit of persistence: one audio input, its assembled raw and
// corrected transcripts, and the per-chunk segments. Runs are immutable once
// saved; review tooling reads them, it does not rewrite them.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sawtlabs/tahrir/internal/pipeline"
)

// Run is a persisted transcription run.
type Run struct {
	// ID identifies the run.
	ID uuid.UUID `json:"id"`

	// SourceName is the caller-supplied label for the audio input, typically
	// the uploaded file name. May be empty.
	SourceName string `json:"source_name"`

	// FullRawText is the space-joined raw transcript of the assembled segments.
	FullRawText string `json:"full_raw_text"`

	// FullCorrectedText is the space-joined corrected transcript of the
	// admitted segments.
	FullCorrectedText string `json:"full_corrected_text"`

	// ChunkCount is the total chunk count, dropped chunks included.
	ChunkCount int `json:"chunk_count"`

	// DurationSeconds is the audio duration.
	DurationSeconds float64 `json:"duration_seconds"`

	// ProcessingSeconds is the wall-clock processing time.
	ProcessingSeconds float64 `json:"processing_seconds"`

	// CreatedAt is set by the database on insert.
	CreatedAt time.Time `json:"created_at"`

	// Segments holds the admitted segments in chunk order.
	Segments []pipeline.Segment `json:"segments"`
}

// NewRun builds a Run from a pipeline output with a fresh random ID.
func NewRun(sourceName string, out *pipeline.Output) *Run {
	return &Run{
		ID:                uuid.New(),
		SourceName:        sourceName,
		FullRawText:       out.FullRawText,
		FullCorrectedText: out.FullCorrectedText,
		ChunkCount:        out.Metadata.ChunkCount,
		DurationSeconds:   out.Metadata.DurationSeconds,
		ProcessingSeconds: out.Metadata.ProcessingSeconds,
		Segments:          out.Segments,
	}
}

// Store is the persistence abstraction for transcription runs.
type Store interface {
	// SaveRun persists a run and its segments atomically.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run with its segments. Returns (nil, nil) when no
	// run with the given ID exists.
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)

	// ListRuns returns the most recent runs, newest first, without their
	// segments. limit <= 0 means a server-chosen default.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
