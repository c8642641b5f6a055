// Package audio provides waveform normalization and overlapping-window
// chunking for the transcription pipeline.
//
// All pipeline stages downstream of this package operate on a canonical
// [Waveform]: mono, fixed sample rate, amplitude within [-1, 1]. Normalize
// produces that canonical form exactly once per run; everything after it
// treats the sample data as immutable.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// peakEpsilon avoids division by zero when peak-normalizing silent input.
const peakEpsilon = 1e-8

// ErrEmptyAudio is returned when the input contains no samples.
var ErrEmptyAudio = errors.New("audio: empty input")

// ErrBadFormat is returned for undecodable or zero-channel input.
var ErrBadFormat = errors.New("audio: unsupported format")

// Waveform is an immutable mono PCM sample sequence at a fixed sample rate
// with amplitude normalized into [-1, 1]. Construct one with [Normalize];
// callers must not mutate the slice returned by [Waveform.Samples].
type Waveform struct {
	samples    []float32
	sampleRate int
}

// Samples returns the underlying mono sample data.
func (w Waveform) Samples() []float32 { return w.samples }

// SampleRate returns the sample rate in Hz.
func (w Waveform) SampleRate() int { return w.sampleRate }

// Len returns the number of samples.
func (w Waveform) Len() int { return len(w.samples) }

// Duration returns the audio duration.
func (w Waveform) Duration() time.Duration {
	if w.sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(w.samples)) * int64(time.Second) / int64(w.sampleRate))
}

// Normalize converts interleaved multi-channel PCM samples into a canonical
// [Waveform]: channels are averaged down to mono, the result is resampled to
// targetRate with linear interpolation, and amplitude is peak-normalized by
// dividing through max(|x|)+ε.
//
// samples holds interleaved frames ([L0 R0 L1 R1 ...] for stereo). Returns
// [ErrBadFormat] when channels < 1 or srcRate/targetRate are not positive,
// and [ErrEmptyAudio] when no complete frame is present.
func Normalize(samples []float32, channels, srcRate, targetRate int) (Waveform, error) {
	if channels < 1 {
		return Waveform{}, fmt.Errorf("%w: %d channels", ErrBadFormat, channels)
	}
	if srcRate <= 0 || targetRate <= 0 {
		return Waveform{}, fmt.Errorf("%w: sample rate %d -> %d", ErrBadFormat, srcRate, targetRate)
	}
	frames := len(samples) / channels
	if frames == 0 {
		return Waveform{}, ErrEmptyAudio
	}

	mono := downmix(samples, channels, frames)
	mono = resample(mono, srcRate, targetRate)
	if len(mono) == 0 {
		return Waveform{}, ErrEmptyAudio
	}

	var peak float64
	for _, s := range mono {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	scale := 1.0 / (peak + peakEpsilon)
	for i, s := range mono {
		mono[i] = float32(float64(s) * scale)
	}

	return Waveform{samples: mono, sampleRate: targetRate}, nil
}

// downmix averages the channels of each interleaved frame into one sample.
// A trailing partial frame is discarded.
func downmix(samples []float32, channels, frames int) []float32 {
	if channels == 1 {
		out := make([]float32, frames)
		copy(out, samples[:frames])
		return out
	}
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(samples[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// resample converts mono samples from srcRate to dstRate using linear
// interpolation. Deterministic: identical input always yields identical
// output. Returns the input slice unchanged when the rates match.
func resample(mono []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(mono) == 0 {
		return mono
	}
	dstLen := int(int64(len(mono)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := mono[srcIdx]
		s1 := s0
		if srcIdx+1 < len(mono) {
			s1 = mono[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
