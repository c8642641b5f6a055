package correct

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sawtlabs/tahrir/pkg/provider/llm"
)

// confirmationOverrideThreshold forces requires_confirmation on chunks whose
// confidence exceeds it, so that unexpected edits to text the decoder was
// sure about never slip through unreviewed.
const confirmationOverrideThreshold = 0.8

// defaultTimeout bounds a single correction call.
const defaultTimeout = 10 * time.Second

// defaultMaxDriftRatio rejects corrections whose Levenshtein distance from
// the raw text exceeds half the raw length.
const defaultMaxDriftRatio = 0.5

// systemPrompt is the dialect-preserving correction instruction. The model
// must fix transcription artifacts without normalising Egyptian Arabic to
// MSA and must answer with a bare JSON object.
const systemPrompt = `You are an ASR post-correction model specialized in Egyptian Arabic (Masri).

Task:
- Correct the text while preserving the meaning and the Egyptian dialect.
- Fix grammar, punctuation, spacing, and word boundaries.
- Keep all Egyptian colloquial expressions (e.g., "عايز", "كده", "ماشي").
- Do NOT convert anything to Modern Standard Arabic (MSA).
- Convert any Arabic numerals (e.g., "٢٥") into English digits ("25").
- Maintain a consistent conversational flow between the agent and the customer.
- If the conversation contains English words, keep them unchanged (e.g., "airport pickup", "dinner cruise").
- Do not rewrite, summarize, or add new information; only correct what is there.
- If sentence flow is broken, fix it while preserving meaning.
- If a sentence, question, or exclamation has no closing punctuation, add it.

Return ONLY a JSON object with exactly these fields:
{"corrected_text": string, "original_text": string, "requires_confirmation": boolean, "changes_made": boolean}`

// Result is the outcome of correcting one chunk. Correction never fails:
// error paths surface as Fallback results carrying the raw text.
type Result struct {
	// CorrectedText is the corrected transcript, or the raw text verbatim
	// when Fallback is true.
	CorrectedText string

	// OriginalText is the raw transcript the correction was asked about.
	OriginalText string

	// Tier is the correction tier the chunk was routed to.
	Tier Tier

	// RequiresConfirmation marks output a human should look at before
	// trusting it.
	RequiresConfirmation bool

	// ChangesMade reports whether the model claims to have edited the text.
	ChangesMade bool

	// Fallback is true when the correction failed and the raw text was
	// passed through instead.
	Fallback bool
}

// correctionPayload is the JSON object the model is instructed to return.
type correctionPayload struct {
	CorrectedText        string `json:"corrected_text"`
	OriginalText         string `json:"original_text"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	ChangesMade          bool   `json:"changes_made"`
}

// Option is a functional option for configuring a Service.
type Option func(*Service)

// WithTimeout sets the per-call timeout. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxDriftRatio sets the normalised Levenshtein distance above which a
// correction is rejected as a rewrite. Defaults to 0.5.
func WithMaxDriftRatio(r float64) Option {
	return func(s *Service) {
		if r > 0 {
			s.maxDriftRatio = r
		}
	}
}

// WithTemperature sets the sampling temperature for correction calls.
// Defaults to 0 (greedy).
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// Service corrects transcript chunks through an LLM provider.
type Service struct {
	provider      llm.Provider
	router        *Router
	timeout       time.Duration
	maxDriftRatio float64
	temperature   float64
}

// NewService creates a correction Service. provider may be nil, in which case
// every chunk falls back to its raw text without a review flag — useful when
// no corrector is configured.
func NewService(provider llm.Provider, router *Router, opts ...Option) *Service {
	s := &Service{
		provider:      provider,
		router:        router,
		timeout:       defaultTimeout,
		maxDriftRatio: defaultMaxDriftRatio,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Correct routes rawText to a tier and asks the LLM to correct it. It never
// returns an error: provider failures, unparseable responses, and excessive
// rewrites all produce a Fallback result carrying the raw text with
// RequiresConfirmation set.
//
// Empty input is a no-op; no LLM call is made.
func (s *Service) Correct(ctx context.Context, rawText string, confidence float64) Result {
	tier, instruction := s.router.Route(confidence)

	trimmed := strings.TrimSpace(rawText)
	if trimmed == "" {
		return Result{Tier: tier}
	}

	if s.provider == nil {
		return Result{
			CorrectedText: trimmed,
			OriginalText:  trimmed,
			Tier:          tier,
		}
	}

	res := s.complete(ctx, trimmed, confidence, tier, instruction)

	// Edits to text the decoder was nearly certain about are suspicious
	// regardless of what the model reported.
	if confidence > confirmationOverrideThreshold {
		res.RequiresConfirmation = true
	}
	return res
}

// complete performs the LLM round trip and parses the response.
func (s *Service) complete(ctx context.Context, rawText string, confidence float64, tier Tier, instruction string) Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf("ASR Confidence Score: %.2f\nPolicy: %s\n\nASR text:\n\"\"\"%s\"\"\"", confidence, instruction, rawText)

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: userPrompt},
		},
		Temperature: s.temperature,
	})
	if err != nil {
		slog.Warn("correction call failed, falling back to raw transcript",
			"tier", tier, "error", err)
		return s.fallback(rawText, tier)
	}

	var payload correctionPayload
	if err := json.Unmarshal([]byte(stripMarkdownFences(resp.Content)), &payload); err != nil {
		slog.Warn("correction response is not valid JSON, falling back to raw transcript",
			"tier", tier, "error", err)
		return s.fallback(rawText, tier)
	}

	corrected := strings.TrimSpace(payload.CorrectedText)
	if corrected == "" {
		slog.Warn("correction response has empty corrected_text, falling back to raw transcript",
			"tier", tier)
		return s.fallback(rawText, tier)
	}

	if ratio := driftRatio(rawText, corrected); ratio > s.maxDriftRatio {
		slog.Warn("correction drifted too far from raw transcript, falling back",
			"tier", tier, "drift_ratio", ratio, "max", s.maxDriftRatio)
		return s.fallback(rawText, tier)
	}

	return Result{
		CorrectedText:        corrected,
		OriginalText:         rawText,
		Tier:                 tier,
		RequiresConfirmation: payload.RequiresConfirmation,
		ChangesMade:          payload.ChangesMade,
	}
}

// fallback passes the raw text through untouched and flags it for review.
func (s *Service) fallback(rawText string, tier Tier) Result {
	return Result{
		CorrectedText:        rawText,
		OriginalText:         rawText,
		Tier:                 tier,
		RequiresConfirmation: true,
		ChangesMade:          false,
		Fallback:             true,
	}
}

// stripMarkdownFences removes a ```json ... ``` (or plain ```) wrapper some
// models insist on, and trims anything outside the outermost JSON braces.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
