// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify what CompletionRequests the correction
// service sends and to feed controlled responses without a live LLM backend.
// All fields are safe to set before calling any method; mutating them during a
// concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: `{"corrected_text": "..."}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/sawtlabs/tahrir/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// When CompleteResponses is non-empty, successive Complete calls return its
// entries in order (sticking on the last one once exhausted). Otherwise
// Complete returns CompleteResponse, CompleteErr.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete when CompleteResponses is
	// empty. May be nil (returns nil, CompleteErr).
	CompleteResponse *llm.CompletionResponse

	// CompleteResponses, when non-empty, is consumed one entry per Complete call.
	CompleteResponses []*llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from every Complete call.
	CompleteErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// Complete records the call and returns the configured response or error.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}

	if len(p.CompleteResponses) > 0 {
		idx := p.next
		if idx >= len(p.CompleteResponses) {
			idx = len(p.CompleteResponses) - 1
		}
		p.next++
		return p.CompleteResponses[idx], nil
	}

	return p.CompleteResponse, nil
}

// Reset clears all recorded calls and the response cursor. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
