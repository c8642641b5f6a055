// Package whisper provides a SpeechModel backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// whisper.cpp does not expose full next-token probability distributions;
// it reports one probability per emitted token. Each of those is folded
// into a two-point distribution {p, 1−p} so the entropy-based confidence
// estimator applies unchanged: a token the decoder was certain about
// contributes confidence 1, a coin-flip token contributes 0.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/sawtlabs/tahrir/pkg/provider/asr"
)

// Compile-time assertion that Model implements asr.SpeechModel.
var _ asr.SpeechModel = (*Model)(nil)

// Model implements asr.SpeechModel using whisper.cpp Go bindings (CGO).
// The underlying model is loaded once and shared; each Decode call creates
// its own whisper context, which is cheap relative to inference.
type Model struct {
	model whisperlib.Model
}

// New creates a Model that loads the whisper.cpp model from the given file
// path. The caller must call Close when the model is no longer needed.
func New(modelPath string) (*Model, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Model{model: model}, nil
}

// Close releases the whisper model.
func (m *Model) Close() error {
	if m.model != nil {
		return m.model.Close()
	}
	return nil
}

// Decode runs whisper.cpp inference over samples and returns the decoded
// text with per-token two-point distributions. targetLang is the language
// hint passed to whisper (e.g., "ar"); sampleRate must be 16000, the only
// rate whisper.cpp accepts.
func (m *Model) Decode(ctx context.Context, samples []float32, sampleRate int, targetLang string) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context cancelled: %w", err)
	}
	if sampleRate != 16000 {
		return nil, fmt.Errorf("whisper: unsupported sample rate %d (need 16000)", sampleRate)
	}

	// Each whisper context is NOT thread-safe, but the model can be shared.
	wctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	if targetLang != "" {
		if err := wctx.SetLanguage(targetLang); err != nil {
			slog.Warn("whisper: failed to set language, using default",
				"language", targetLang, "error", err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	var steps [][]float64
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			steps = append(steps, twoPoint(float64(tok.P)))
		}
	}

	return &asr.Result{
		Text: strings.Join(parts, " "),
		Distribution: asr.TokenDistribution{
			Steps:     steps,
			VocabSize: 2,
		},
	}, nil
}

// twoPoint maps a single token probability to a {p, 1−p} distribution,
// clamping p into [0, 1] first.
func twoPoint(p float64) []float64 {
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	return []float64{p, 1 - p}
}
