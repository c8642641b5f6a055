package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sawtlabs/tahrir/pkg/provider/asr"
	"github.com/sawtlabs/tahrir/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	asr       map[string]func(ProviderEntry) (asr.SpeechModel, error)
	corrector map[string]func(CorrectorConfig) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:       make(map[string]func(ProviderEntry) (asr.SpeechModel, error)),
		corrector: make(map[string]func(CorrectorConfig) (llm.Provider, error)),
	}
}

// RegisterASR registers a speech model factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory func(ProviderEntry) (asr.SpeechModel, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterCorrector registers an LLM provider factory under name.
func (r *Registry) RegisterCorrector(name string, factory func(CorrectorConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corrector[name] = factory
}

// CreateASR instantiates a speech model using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateASR(entry ProviderEntry) (asr.SpeechModel, error) {
	r.mu.RLock()
	factory, ok := r.asr[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCorrector instantiates an LLM provider using the factory registered
// under cfg.Provider. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateCorrector(cfg CorrectorConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.corrector[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: corrector/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}
