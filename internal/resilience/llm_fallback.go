package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sawtlabs/tahrir/pkg/provider/llm"
)

// ErrAllFailed is returned when every backend in an [LLMFallback] fails or
// has a tripped circuit breaker.
var ErrAllFailed = errors.New("all correction backends failed")

// FallbackConfig configures the per-backend circuit breaker of an
// [LLMFallback]. The Name field is overwritten with each backend's name.
type FallbackConfig struct {
	Breaker BreakerConfig
}

// backend pairs a correction provider with its dedicated circuit breaker.
type backend struct {
	name     string
	provider llm.Provider
	breaker  *Breaker
}

// LLMFallback implements [llm.Provider] with failover across multiple
// correction backends. Backends are tried in registration order; one with a
// tripped breaker is skipped without an attempt. The correction service
// treats the chain as a single provider and only falls back to the raw
// transcript once every backend has failed.
//
// AddFallback must not be called concurrently with Complete.
type LLMFallback struct {
	backends []*backend
	cfg      FallbackConfig
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates a chain with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	f := &LLMFallback{cfg: cfg}
	f.add(primaryName, primary)
	return f
}

// AddFallback appends a backend tried after all previously registered ones.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.add(name, provider)
}

func (f *LLMFallback) add(name string, provider llm.Provider) {
	bcfg := f.cfg.Breaker
	bcfg.Name = name
	f.backends = append(f.backends, &backend{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(bcfg),
	})
}

// Complete routes the request to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for i, b := range f.backends {
		if err := b.breaker.Allow(); err != nil {
			slog.Debug("skipping correction backend, circuit open", "backend", b.name)
			lastErr = err
			continue
		}

		resp, err := b.provider.Complete(ctx, req)
		b.breaker.Record(err)
		if err == nil {
			if i > 0 {
				slog.Info("correction served by fallback backend", "backend", b.name)
			}
			return resp, nil
		}
		lastErr = err
		slog.Warn("correction backend failed, trying next", "backend", b.name, "err", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
