package audio_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/sawtlabs/tahrir/pkg/audio"
)

func TestEncodeDecodeWAV_RoundTrip(t *testing.T) {
	t.Parallel()

	in := make([]float32, 1600)
	for i := range in {
		in[i] = float32(0.25 * math.Sin(2*math.Pi*220*float64(i)/16000))
	}

	wavBytes := audio.EncodeWAV(in, 16000)

	samples, channels, rate, err := audio.DecodeWAV(bytes.NewReader(wavBytes))
	if err != nil {
		t.Fatalf("DecodeWAV returned error: %v", err)
	}
	if channels != 1 {
		t.Errorf("channels=%d, want 1", channels)
	}
	if rate != 16000 {
		t.Errorf("rate=%d, want 16000", rate)
	}
	if len(samples) != len(in) {
		t.Fatalf("got %d samples, want %d", len(samples), len(in))
	}
	// 16-bit quantization: round trip is accurate to one PCM step.
	for i := range in {
		if math.Abs(float64(samples[i]-in[i])) > 1.0/32767 {
			t.Fatalf("sample %d drifted: got %f, want %f", i, samples[i], in[i])
		}
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, _, _, err := audio.DecodeWAV(bytes.NewReader([]byte("definitely not a wav file")))
	if !errors.Is(err, audio.ErrBadFormat) {
		t.Errorf("got %v, want ErrBadFormat", err)
	}
}
