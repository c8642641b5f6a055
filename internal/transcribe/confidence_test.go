package transcribe_test

import (
	"math"
	"testing"

	"github.com/sawtlabs/tahrir/internal/transcribe"
)

func TestScoreDistribution_OneHotIsFullConfidence(t *testing.T) {
	t.Parallel()

	steps := [][]float64{
		{1, 0, 0, 0},
		{0, 0, 1, 0},
	}
	c := transcribe.ScoreDistribution(steps, 4)
	if math.Abs(c.Mean-1) > 1e-9 {
		t.Errorf("one-hot distributions: Mean = %f, want 1", c.Mean)
	}
	if len(c.Steps) != 2 {
		t.Fatalf("got %d step scores, want 2", len(c.Steps))
	}
	for i, s := range c.Steps {
		if math.Abs(s-1) > 1e-9 {
			t.Errorf("step %d score = %f, want 1", i, s)
		}
	}
}

func TestScoreDistribution_UniformIsZeroConfidence(t *testing.T) {
	t.Parallel()

	steps := [][]float64{
		{0.25, 0.25, 0.25, 0.25},
	}
	c := transcribe.ScoreDistribution(steps, 4)
	// Entropy of a uniform distribution equals log(V), so confidence
	// collapses to ~0 (the epsilon inside the log leaves a tiny residue).
	if c.Mean > 1e-6 {
		t.Errorf("uniform distribution: Mean = %g, want ~0", c.Mean)
	}
}

func TestScoreDistribution_TwoPointCoinFlip(t *testing.T) {
	t.Parallel()

	c := transcribe.ScoreDistribution([][]float64{{0.5, 0.5}}, 2)
	if c.Mean > 1e-6 {
		t.Errorf("coin-flip two-point: Mean = %g, want ~0", c.Mean)
	}

	c = transcribe.ScoreDistribution([][]float64{{0.99, 0.01}}, 2)
	if c.Mean < 0.9 {
		t.Errorf("near-certain two-point: Mean = %g, want > 0.9", c.Mean)
	}
}

func TestScoreDistribution_MixedSteps(t *testing.T) {
	t.Parallel()

	steps := [][]float64{
		{1, 0, 0, 0},             // confidence 1
		{0.25, 0.25, 0.25, 0.25}, // confidence ~0
	}
	c := transcribe.ScoreDistribution(steps, 4)
	if math.Abs(c.Mean-0.5) > 1e-3 {
		t.Errorf("mixed steps: Mean = %f, want ~0.5", c.Mean)
	}
}

func TestScoreDistribution_NoSteps(t *testing.T) {
	t.Parallel()

	c := transcribe.ScoreDistribution(nil, 4)
	if c.Mean != 0 || len(c.Steps) != 0 {
		t.Errorf("empty input: got %+v, want zero value", c)
	}
}

func TestScoreDistribution_DegenerateVocab(t *testing.T) {
	t.Parallel()

	for _, v := range []int{0, 1, -3} {
		c := transcribe.ScoreDistribution([][]float64{{1}}, v)
		if c.Mean != 0 {
			t.Errorf("vocabSize=%d: Mean = %f, want 0", v, c.Mean)
		}
	}
}

func TestScoreDistribution_ClampedToUnitInterval(t *testing.T) {
	t.Parallel()

	// Probability mass above 1 drives entropy above log(V); confidence must
	// stay clamped rather than going negative.
	c := transcribe.ScoreDistribution([][]float64{{0.7, 0.7, 0.7}}, 3)
	if c.Mean < 0 || c.Mean > 1 {
		t.Errorf("Mean = %f, want within [0, 1]", c.Mean)
	}
	for i, s := range c.Steps {
		if s < 0 || s > 1 {
			t.Errorf("step %d score = %f, want within [0, 1]", i, s)
		}
	}
}
