package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrChunkGeometry is returned when the chunk duration does not exceed the
// overlap, which would make the splitter step backwards or stall.
var ErrChunkGeometry = errors.New("audio: chunk duration must exceed overlap")

// Chunk is a contiguous slice of a [Waveform]. Samples aliases the parent
// waveform's storage; chunks are consumed once by the transcription engine
// and not retained afterwards.
type Chunk struct {
	// Index is the zero-based position of this chunk in the sequence.
	Index int

	// Start is the chunk's offset into the waveform, in samples.
	Start int

	// Samples is the chunk's audio data.
	Samples []float32
}

// End returns the exclusive end offset of the chunk in samples.
func (c Chunk) End() int { return c.Start + len(c.Samples) }

// Split slices w into fixed-duration windows that overlap by overlap.
// Consecutive start offsets advance by chunkDuration−overlap; every chunk
// spans [start, min(start+chunkDuration, total)), so the final chunk may be
// shorter. The result is deterministic for a given waveform and geometry.
//
// Overlap exists because audio near a window boundary decodes less reliably;
// letting neighbouring windows share boundary audio means a boundary error is
// rarely the only coverage of a span. No de-duplication of the overlapping
// decoded text is attempted.
//
// Returns [ErrChunkGeometry] unless chunkDuration > overlap > −1.
func Split(w Waveform, chunkDuration, overlap time.Duration) ([]Chunk, error) {
	if overlap < 0 {
		return nil, fmt.Errorf("%w: negative overlap %s", ErrChunkGeometry, overlap)
	}
	if chunkDuration <= overlap {
		return nil, fmt.Errorf("%w: chunk %s, overlap %s", ErrChunkGeometry, chunkDuration, overlap)
	}

	chunkSamples := int(int64(w.SampleRate()) * int64(chunkDuration) / int64(time.Second))
	overlapSamples := int(int64(w.SampleRate()) * int64(overlap) / int64(time.Second))
	if chunkSamples <= 0 {
		return nil, fmt.Errorf("%w: chunk %s at %d Hz is empty", ErrChunkGeometry, chunkDuration, w.SampleRate())
	}
	step := chunkSamples - overlapSamples

	total := w.Len()
	if total == 0 {
		return nil, ErrEmptyAudio
	}

	var chunks []Chunk
	for start := 0; start < total; start += step {
		end := min(start+chunkSamples, total)
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Start:   start,
			Samples: w.Samples()[start:end],
		})
		if end == total {
			break
		}
	}
	return chunks, nil
}
