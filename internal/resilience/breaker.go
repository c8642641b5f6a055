// Package resilience provides the failover machinery for the correction
// backends: a three-state circuit breaker and an [LLMFallback] chain that
// routes completion calls to the first healthy backend.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Allow] while the breaker is open
// and the reset timeout has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
	defaultProbeBudget  = 3
)

// BreakerConfig tunes a [Breaker]. Zero values take the package defaults.
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker open.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before it
	// starts probing again.
	ResetTimeout time.Duration

	// ProbeBudget is how many calls the half-open state admits; that many
	// consecutive successes close the breaker, any failure re-opens it.
	ProbeBudget int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = defaultMaxFailures
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = defaultResetTimeout
	}
	if c.ProbeBudget <= 0 {
		c.ProbeBudget = defaultProbeBudget
	}
	return c
}

// Breaker is a three-state circuit breaker (closed, open, half-open).
//
// Callers ask [Breaker.Allow] before each attempt and report the outcome
// with [Breaker.Record]. Safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	open      bool
	probing   bool
	failures  int // consecutive failures while closed
	probes    int // attempts admitted while probing
	successes int // successful probes
	trippedAt time.Time
}

// NewBreaker returns a closed [Breaker] with the given configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Allow reports whether a call may proceed. It returns [ErrCircuitOpen]
// while the breaker is open or the half-open probe budget is spent; otherwise
// it admits the call, which must be followed by a [Breaker.Record].
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		if time.Since(b.trippedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.open = false
		b.probing = true
		b.probes = 0
		b.successes = 0
		slog.Info("circuit breaker probing", "name", b.cfg.Name)
	}

	if b.probing {
		if b.probes >= b.cfg.ProbeBudget {
			return ErrCircuitOpen
		}
		b.probes++
	}
	return nil
}

// Record reports the outcome of a call admitted by [Breaker.Allow].
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if !b.probing {
			b.failures = 0
			return
		}
		b.successes++
		if b.successes >= b.cfg.ProbeBudget {
			b.probing = false
			b.failures = 0
			slog.Info("circuit breaker closed", "name", b.cfg.Name)
		}
		return
	}

	b.trippedAt = time.Now()
	if b.probing {
		// One failed probe re-opens immediately.
		b.probing = false
		b.open = true
		slog.Warn("circuit breaker re-opened", "name", b.cfg.Name)
		return
	}
	b.failures++
	if b.failures >= b.cfg.MaxFailures {
		b.open = true
		slog.Warn("circuit breaker opened",
			"name", b.cfg.Name,
			"consecutive_failures", b.failures)
	}
}

// Reset forces the breaker back to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.probing = false
	b.failures = 0
	slog.Info("circuit breaker reset", "name", b.cfg.Name)
}

// Tripped reports whether the breaker currently rejects calls outright,
// i.e. it is open and the reset timeout has not elapsed.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.trippedAt) < b.cfg.ResetTimeout
}
