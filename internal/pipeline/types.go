// Package pipeline orchestrates the full transcription flow: normalize audio,
// split it into overlapping chunks, decode and score each chunk, route it
// through confidence-gated correction, and assemble ordered output.
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by [Config.Validate] wrapping the specific
// failures found.
var ErrInvalidConfig = errors.New("pipeline: invalid config")

// Config holds the pipeline's chunking geometry and thresholds. Values are
// typically derived from [config.PipelineConfig]; the duplication keeps this
// package free of the YAML layer.
type Config struct {
	// ChunkDuration is the length of each audio chunk. Must exceed Overlap.
	ChunkDuration time.Duration

	// Overlap is the overlap between consecutive chunks. Must be >= 0.
	Overlap time.Duration

	// AdmissionThreshold drops chunks whose confidence is at or below it.
	AdmissionThreshold float64

	// SampleRate is the rate audio is normalized to before decoding.
	SampleRate int
}

// Validate checks the config, returning an error wrapping [ErrInvalidConfig]
// when any value is out of range. A chunk no longer than the overlap would
// make the split unable to advance, so that is rejected outright rather than
// clamped.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkDuration <= 0 {
		errs = append(errs, fmt.Errorf("chunk duration %v must be positive", c.ChunkDuration))
	}
	if c.Overlap < 0 {
		errs = append(errs, fmt.Errorf("overlap %v must not be negative", c.Overlap))
	}
	if c.ChunkDuration > 0 && c.Overlap >= 0 && c.ChunkDuration <= c.Overlap {
		errs = append(errs, fmt.Errorf("chunk duration %v must exceed overlap %v", c.ChunkDuration, c.Overlap))
	}
	if c.AdmissionThreshold < 0 || c.AdmissionThreshold > 1 {
		errs = append(errs, fmt.Errorf("admission threshold %.2f is out of range [0, 1]", c.AdmissionThreshold))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", c.SampleRate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Segment is one admitted, corrected chunk in the assembled output.
type Segment struct {
	// Index is the chunk's position in the original audio, 0-based.
	Index int `json:"index"`

	// RawText is the uncorrected decode.
	RawText string `json:"raw_text"`

	// CorrectedText is the corrected transcript; equals RawText when the
	// correction fell back.
	CorrectedText string `json:"corrected_text"`

	// Confidence is the chunk's entropy confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Tier is the correction tier the chunk was routed to.
	Tier string `json:"tier"`

	// NeedsReview marks segments a human should confirm: REVIEW-tier
	// routing, a confirmation flag from the corrector, or a fallback.
	NeedsReview bool `json:"needs_review"`
}

// Metadata describes a completed run.
type Metadata struct {
	// ChunkCount is the total number of chunks the audio split into,
	// including chunks that were dropped.
	ChunkCount int `json:"chunk_count"`

	// DurationSeconds is the normalized audio duration.
	DurationSeconds float64 `json:"duration_seconds"`

	// ProcessingSeconds is the wall-clock time the run took.
	ProcessingSeconds float64 `json:"processing_seconds"`
}

// Output is the assembled result of one transcription run.
type Output struct {
	// FullRawText is the space-joined raw decode of every chunk, including
	// chunks the admission filter later dropped.
	FullRawText string `json:"full_raw_text"`

	// FullCorrectedText is the space-joined corrected text of the admitted
	// segments, in chunk order.
	FullCorrectedText string `json:"full_corrected_text"`

	// Segments lists the admitted segments in chunk order.
	Segments []Segment `json:"segments"`

	// Metadata describes the run.
	Metadata Metadata `json:"metadata"`
}
