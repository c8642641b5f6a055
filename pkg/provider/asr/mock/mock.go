// Package mock provides a test double for the asr.SpeechModel interface.
//
// Use Model in unit tests to feed controlled decode results without a live
// inference backend and to verify what audio the pipeline submitted.
// Configure the response fields before use; mutating them during a
// concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/sawtlabs/tahrir/pkg/provider/asr"
)

// DecodeCall records a single invocation of Decode.
type DecodeCall struct {
	// SampleCount is the number of samples submitted.
	SampleCount int
	// SampleRate is the sample rate submitted.
	SampleRate int
	// TargetLang is the language identifier submitted.
	TargetLang string
}

// Model is a mock implementation of asr.SpeechModel.
//
// When Results is non-empty, successive Decode calls return its entries in
// order (sticking on the last one once exhausted). Otherwise Decode returns
// Result. Set Err to make every call fail.
type Model struct {
	mu sync.Mutex

	// Result is returned by Decode when Results is empty. May be nil,
	// in which case an empty decode is returned.
	Result *asr.Result

	// Results, when non-empty, is consumed one entry per Decode call.
	Results []*asr.Result

	// Err, if non-nil, is returned as the error from every Decode call.
	Err error

	// DecodeCalls records every invocation of Decode in order.
	DecodeCalls []DecodeCall

	next int
}

// Decode records the call and returns the configured result or error.
func (m *Model) Decode(_ context.Context, samples []float32, sampleRate int, targetLang string) (*asr.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DecodeCalls = append(m.DecodeCalls, DecodeCall{
		SampleCount: len(samples),
		SampleRate:  sampleRate,
		TargetLang:  targetLang,
	})

	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Results) > 0 {
		idx := m.next
		if idx >= len(m.Results) {
			idx = len(m.Results) - 1
		}
		m.next++
		return m.Results[idx], nil
	}

	if m.Result != nil {
		return m.Result, nil
	}
	return &asr.Result{}, nil
}

// Reset clears all recorded calls and the result cursor. Thread-safe.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DecodeCalls = nil
	m.next = 0
}

// Ensure Model implements asr.SpeechModel at compile time.
var _ asr.SpeechModel = (*Model)(nil)
