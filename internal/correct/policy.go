// Package correct applies confidence-gated LLM correction to raw transcript
// chunks.
//
// Every chunk is routed to a correction tier based on its decode confidence.
// The tier selects the policy instruction embedded in the correction prompt:
// high-confidence text gets minimal edits, low-confidence text is corrected
// and flagged for human review. Correction never fails a chunk — any provider
// error, malformed response, or excessive rewrite falls back to the raw
// transcript with a mandatory review flag.
package correct

import "sync"

// Tier is the correction aggressiveness level assigned to a chunk.
type Tier string

const (
	// TierAuto applies to high-confidence chunks; the model makes minimal
	// changes.
	TierAuto Tier = "AUTO"

	// TierSuggest applies to medium-confidence chunks; standard correction.
	TierSuggest Tier = "SUGGEST"

	// TierReview applies to low-confidence chunks; corrected output is
	// flagged for human confirmation.
	TierReview Tier = "REVIEW"
)

// Router maps a confidence score to a correction tier. Boundaries are
// exclusive lower bounds: a score exactly at a threshold falls into the tier
// below it. Thresholds may be updated at runtime via [Router.SetThresholds];
// Route is safe for concurrent use.
type Router struct {
	mu      sync.RWMutex
	auto    float64
	suggest float64
}

// NewRouter creates a Router with the given exclusive lower bounds. auto must
// exceed suggest; the config validator enforces this before the router is
// built.
func NewRouter(auto, suggest float64) *Router {
	return &Router{auto: auto, suggest: suggest}
}

// SetThresholds replaces both tier boundaries. Chunks already routed keep
// their tier; only future Route calls see the new values.
func (r *Router) SetThresholds(auto, suggest float64) {
	r.mu.Lock()
	r.auto, r.suggest = auto, suggest
	r.mu.Unlock()
}

// Route returns the tier for confidence together with the policy instruction
// the correction prompt embeds for that tier.
func (r *Router) Route(confidence float64) (Tier, string) {
	r.mu.RLock()
	auto, suggest := r.auto, r.suggest
	r.mu.RUnlock()

	switch {
	case confidence > auto:
		return TierAuto, "AUTO: High confidence. Make minimal changes."
	case confidence > suggest:
		return TierSuggest, "SUGGEST: Medium confidence. Standard correction."
	default:
		return TierReview, "REVIEW: Low confidence. Flag for human confirmation."
	}
}
