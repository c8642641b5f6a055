// Package transcribe turns audio chunks into scored transcripts.
//
// The engine submits chunk samples to a speech model and derives a confidence
// score for each decode from the per-step probability vectors the model
// reports. Confidence is computed from normalized token entropy: a decoder
// that concentrates probability mass on one token per step is confident, one
// that spreads mass across the vocabulary is guessing.
package transcribe

import "math"

// entropyEpsilon guards the logarithm against zero probabilities.
const entropyEpsilon = 1e-10

// Confidence holds the per-chunk confidence score and its per-step breakdown.
type Confidence struct {
	// Mean is the chunk-level score in [0, 1], the average of Steps.
	Mean float64

	// Steps holds one score per decoding step, 1 - H/log(V) where H is the
	// step's entropy and V the vocabulary size.
	Steps []float64
}

// ScoreDistribution computes entropy-based confidence from per-step
// probability vectors over a vocabulary of size vocabSize.
//
// Returns a zero-valued Confidence when there are no steps or when
// vocabSize <= 1; a degenerate vocabulary carries no information, so the
// decode is treated as fully uncertain rather than fully certain.
func ScoreDistribution(steps [][]float64, vocabSize int) Confidence {
	if len(steps) == 0 || vocabSize <= 1 {
		return Confidence{}
	}

	maxEntropy := math.Log(float64(vocabSize))
	perStep := make([]float64, 0, len(steps))
	var sum float64

	for _, probs := range steps {
		h := 0.0
		for _, p := range probs {
			if p <= 0 {
				continue
			}
			h -= p * math.Log(p+entropyEpsilon)
		}
		c := 1 - h/maxEntropy
		c = clamp01(c)
		perStep = append(perStep, c)
		sum += c
	}

	return Confidence{
		Mean:  clamp01(sum / float64(len(perStep))),
		Steps: perStep,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
