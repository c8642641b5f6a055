package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/sawtlabs/tahrir/pkg/audio"
	"github.com/sawtlabs/tahrir/pkg/provider/asr"
)

// ChunkTranscript is the scored decode result for a single audio chunk.
type ChunkTranscript struct {
	// RawText is the decoded transcript, whitespace-trimmed. May be empty
	// for silent audio.
	RawText string

	// Confidence is the chunk-level entropy confidence in [0, 1]. Zero when
	// the decode produced no text or no distribution.
	Confidence float64

	// TokenCount is the number of decoding steps that contributed to the
	// score.
	TokenCount int

	// StepConfidences holds the per-step confidence breakdown, in decode
	// order. Useful for debugging low-scoring chunks.
	StepConfidences []float64
}

// Engine decodes audio chunks through a speech model and scores each result.
type Engine struct {
	model      asr.SpeechModel
	sampleRate int
	targetLang string
}

// NewEngine creates an Engine that decodes with model. sampleRate is the rate
// chunk samples arrive at; targetLang is the language hint forwarded to the
// model.
func NewEngine(model asr.SpeechModel, sampleRate int, targetLang string) *Engine {
	return &Engine{
		model:      model,
		sampleRate: sampleRate,
		targetLang: targetLang,
	}
}

// Transcribe decodes one chunk and returns its scored transcript. Model
// errors are wrapped and propagated; the caller decides their disposition.
//
// An empty decode is a valid result with confidence 0, not an error: silence
// and non-speech audio legitimately produce no text.
func (e *Engine) Transcribe(ctx context.Context, chunk audio.Chunk) (*ChunkTranscript, error) {
	res, err := e.model.Decode(ctx, chunk.Samples, e.sampleRate, e.targetLang)
	if err != nil {
		return nil, fmt.Errorf("transcribe: decode chunk %d: %w", chunk.Index, err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return &ChunkTranscript{}, nil
	}

	score := ScoreDistribution(res.Distribution.Steps, res.Distribution.VocabSize)
	return &ChunkTranscript{
		RawText:         text,
		Confidence:      score.Mean,
		TokenCount:      len(score.Steps),
		StepConfidences: score.Steps,
	}, nil
}
