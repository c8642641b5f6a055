package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sawtlabs/tahrir/internal/correct"
	"github.com/sawtlabs/tahrir/internal/observe"
	"github.com/sawtlabs/tahrir/internal/transcribe"
	"github.com/sawtlabs/tahrir/pkg/audio"
)

// chunkState is the terminal disposition of one chunk.
type chunkState int

const (
	stateAssembled chunkState = iota
	stateDropped
)

func (s chunkState) String() string {
	if s == stateAssembled {
		return "assembled"
	}
	return "dropped"
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline runs the full transcription flow for one audio input: normalize,
// split, decode, score, correct, assemble.
type Pipeline struct {
	cfg       Config
	engine    *transcribe.Engine
	corrector *correct.Service
	metrics   *observe.Metrics

	// admission holds the admission threshold as float64 bits so config
	// reloads can adjust it while runs are in flight.
	admission atomic.Uint64

	// modelSem serializes decode calls: the underlying speech model holds a
	// single inference context and is not safe for concurrent use.
	modelSem *semaphore.Weighted
}

// New creates a Pipeline. The config must have been validated.
func New(cfg Config, engine *transcribe.Engine, corrector *correct.Service, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		engine:    engine,
		corrector: corrector,
		modelSem:  semaphore.NewWeighted(1),
	}
	p.admission.Store(math.Float64bits(cfg.AdmissionThreshold))
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// SetAdmissionThreshold replaces the admission threshold. Takes effect on the
// next chunk.
func (p *Pipeline) SetAdmissionThreshold(v float64) {
	p.admission.Store(math.Float64bits(v))
}

func (p *Pipeline) admissionThreshold() float64 {
	return math.Float64frombits(p.admission.Load())
}

// Process transcribes interleaved PCM samples and returns the assembled
// output. Normalization and split failures are fatal; per-chunk decode and
// correction failures only drop or flag the affected chunk.
//
// Chunks are processed strictly in order. Segment order in the output always
// matches chunk order.
func (p *Pipeline) Process(ctx context.Context, samples []float32, channels, srcRate int) (*Output, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	defer span.End()

	started := time.Now()
	p.metrics.ActiveRuns.Add(ctx, 1)
	defer p.metrics.ActiveRuns.Add(ctx, -1)

	wave, err := audio.Normalize(samples, channels, srcRate, p.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("pipeline: normalize: %w", err)
	}
	chunks, err := audio.Split(wave, p.cfg.ChunkDuration, p.cfg.Overlap)
	if err != nil {
		return nil, fmt.Errorf("pipeline: split: %w", err)
	}

	out := &Output{
		Metadata: Metadata{
			ChunkCount:      len(chunks),
			DurationSeconds: wave.Duration().Seconds(),
		},
	}

	var rawParts, correctedParts []string
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline: canceled at chunk %d: %w", chunk.Index, err)
		}

		seg, state := p.processChunk(ctx, chunk)
		p.metrics.RecordChunkProcessed(ctx, state.String())

		// Dropped chunks leave no trace in either transcript; the loss is
		// visible through chunk_count versus the segment count.
		if state != stateAssembled {
			continue
		}
		out.Segments = append(out.Segments, *seg)
		rawParts = append(rawParts, seg.RawText)
		correctedParts = append(correctedParts, seg.CorrectedText)
	}

	out.FullRawText = strings.Join(rawParts, " ")
	out.FullCorrectedText = strings.Join(correctedParts, " ")
	out.Metadata.ProcessingSeconds = time.Since(started).Seconds()
	return out, nil
}

// Stream runs the same flow as Process but delivers admitted segments on a
// channel as soon as each one is corrected. The channel is closed when the
// run finishes; the final Output (with assembled texts and metadata) is then
// available through the returned function.
//
// Normalization and split failures are reported synchronously. A cancellation
// mid-run closes the channel early and surfaces the error from the result
// function.
func (p *Pipeline) Stream(ctx context.Context, samples []float32, channels, srcRate int) (<-chan Segment, func() (*Output, error), error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.stream")

	started := time.Now()
	wave, err := audio.Normalize(samples, channels, srcRate, p.cfg.SampleRate)
	if err != nil {
		span.End()
		return nil, nil, fmt.Errorf("pipeline: normalize: %w", err)
	}
	chunks, err := audio.Split(wave, p.cfg.ChunkDuration, p.cfg.Overlap)
	if err != nil {
		span.End()
		return nil, nil, fmt.Errorf("pipeline: split: %w", err)
	}

	segments := make(chan Segment, len(chunks))
	done := make(chan struct{})

	out := &Output{
		Metadata: Metadata{
			ChunkCount:      len(chunks),
			DurationSeconds: wave.Duration().Seconds(),
		},
	}
	var runErr error

	p.metrics.ActiveRuns.Add(ctx, 1)
	go func() {
		defer close(done)
		defer close(segments)
		defer span.End()
		defer p.metrics.ActiveRuns.Add(ctx, -1)

		var rawParts, correctedParts []string
		for _, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				runErr = fmt.Errorf("pipeline: canceled at chunk %d: %w", chunk.Index, err)
				return
			}

			seg, state := p.processChunk(ctx, chunk)
			p.metrics.RecordChunkProcessed(ctx, state.String())

			if state != stateAssembled {
				continue
			}
			out.Segments = append(out.Segments, *seg)
			rawParts = append(rawParts, seg.RawText)
			correctedParts = append(correctedParts, seg.CorrectedText)

			select {
			case segments <- *seg:
			case <-ctx.Done():
				runErr = fmt.Errorf("pipeline: canceled at chunk %d: %w", chunk.Index, ctx.Err())
				return
			}
		}
		out.FullRawText = strings.Join(rawParts, " ")
		out.FullCorrectedText = strings.Join(correctedParts, " ")
		out.Metadata.ProcessingSeconds = time.Since(started).Seconds()
	}()

	result := func() (*Output, error) {
		<-done
		if runErr != nil {
			return nil, runErr
		}
		return out, nil
	}
	return segments, result, nil
}

// processChunk decodes, scores, and corrects one chunk. It returns the
// assembled segment (nil when dropped) and the terminal state. A panic
// inside decode or correction drops the chunk instead of killing the run.
func (p *Pipeline) processChunk(ctx context.Context, chunk audio.Chunk) (seg *Segment, state chunkState) {
	ctx, span := observe.StartSpan(ctx, "pipeline.chunk")
	defer span.End()

	log := observe.Logger(ctx).With("chunk", chunk.Index)

	defer func() {
		if r := recover(); r != nil {
			log.Error("chunk processing panicked, dropping chunk", "panic", r)
			seg, state = nil, stateDropped
		}
	}()

	tr, err := p.decode(ctx, chunk)
	if err != nil {
		log.Error("decode failed, dropping chunk", "error", err)
		return nil, stateDropped
	}
	rawText := tr.RawText

	if rawText == "" {
		log.Debug("chunk decoded to empty text, dropping")
		return nil, stateDropped
	}
	if threshold := p.admissionThreshold(); tr.Confidence <= threshold {
		log.Info("chunk below admission threshold, dropping",
			"confidence", tr.Confidence, "threshold", threshold)
		return nil, stateDropped
	}

	correctionStart := time.Now()
	res := p.corrector.Correct(ctx, rawText, tr.Confidence)
	p.metrics.CorrectionDuration.Record(ctx, time.Since(correctionStart).Seconds())
	p.metrics.RecordTierRouting(ctx, string(res.Tier))
	if res.Fallback {
		p.metrics.RecordCorrectionFallback(ctx, "correction")
	}

	return &Segment{
		Index:         chunk.Index,
		RawText:       rawText,
		CorrectedText: res.CorrectedText,
		Confidence:    tr.Confidence,
		Tier:          string(res.Tier),
		NeedsReview:   res.RequiresConfirmation || res.Fallback || res.Tier == correct.TierReview,
	}, stateAssembled
}

// decode runs one chunk through the speech model under the model semaphore.
func (p *Pipeline) decode(ctx context.Context, chunk audio.Chunk) (*transcribe.ChunkTranscript, error) {
	if err := p.modelSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.modelSem.Release(1)

	start := time.Now()
	tr, err := p.engine.Transcribe(ctx, chunk)
	p.metrics.DecodeDuration.Record(ctx, time.Since(start).Seconds())
	return tr, err
}
