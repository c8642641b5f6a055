// Package asr defines the SpeechModel interface for speech-to-text backends.
//
// A speech model wraps an opaque inference engine (a remote SeamlessM4T
// server, a local whisper.cpp model) behind a single batch Decode call.
// Beyond the decoded text, a model reports the per-decoding-step probability
// vectors it produced, which the confidence estimator turns into a single
// per-chunk score. The pipeline never inspects model internals; it only
// consumes [Result] values.
//
// Implementations must be safe for concurrent use. Backends whose underlying
// engine cannot serve overlapping requests rely on the pipeline serializing
// access; they do not need to queue internally.
package asr

import "context"

// TokenDistribution is the ordered sequence of per-decoding-step probability
// vectors emitted while decoding one chunk. It is ephemeral: the confidence
// estimator consumes it immediately and the pipeline discards it.
type TokenDistribution struct {
	// Steps holds one probability vector per decoding step. Each vector's
	// entries are probabilities over (a subset of) the vocabulary and sum
	// to at most 1.
	Steps [][]float64

	// VocabSize is the vocabulary size the probabilities are drawn from,
	// used to normalize per-step entropy. Must be > 1 for confidence to be
	// meaningful.
	VocabSize int
}

// Result is the outcome of decoding one audio chunk.
type Result struct {
	// Text is the decoded transcript text. Empty for silent audio — an
	// empty decode is a valid result, not an error.
	Text string

	// Distribution holds the probability vectors used to derive confidence.
	Distribution TokenDistribution
}

// SpeechModel is the abstraction over any batch speech-to-text backend.
type SpeechModel interface {
	// Decode transcribes mono samples at sampleRate into targetLang text.
	// Errors are returned unmodified to the caller; the pipeline decides
	// their disposition.
	Decode(ctx context.Context, samples []float32, sampleRate int, targetLang string) (*Result, error)
}
