package correct_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sawtlabs/tahrir/internal/correct"
	"github.com/sawtlabs/tahrir/pkg/provider/llm"
	"github.com/sawtlabs/tahrir/pkg/provider/llm/mock"
)

func newService(p llm.Provider, opts ...correct.Option) *correct.Service {
	return correct.NewService(p, correct.NewRouter(0.9, 0.7), opts...)
}

func TestCorrect_ParsesProviderResponse(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"corrected_text": "عايز أحجز رحلة.", "original_text": "عايز احجز رحله", "requires_confirmation": false, "changes_made": true}`,
		},
	}
	s := newService(p)

	res := s.Correct(context.Background(), "عايز احجز رحله", 0.75)
	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if res.CorrectedText != "عايز أحجز رحلة." {
		t.Errorf("CorrectedText = %q", res.CorrectedText)
	}
	if !res.ChangesMade {
		t.Error("ChangesMade should be true")
	}
	if res.RequiresConfirmation {
		t.Error("RequiresConfirmation should be false at confidence 0.75")
	}
	if res.Tier != correct.TierSuggest {
		t.Errorf("Tier = %s, want SUGGEST", res.Tier)
	}
}

func TestCorrect_PromptCarriesPolicyAndText(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"corrected_text": "ماشي.", "requires_confirmation": false, "changes_made": true}`,
		},
	}
	s := newService(p)
	s.Correct(context.Background(), "ماشي", 0.95)

	if len(p.CompleteCalls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "Egyptian Arabic (Masri)") {
		t.Error("system prompt missing dialect instruction")
	}
	user := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(user, "AUTO: High confidence. Make minimal changes.") {
		t.Errorf("user prompt missing AUTO policy, got: %s", user)
	}
	if !strings.Contains(user, "ماشي") {
		t.Error("user prompt missing the raw text")
	}
}

func TestCorrect_EmptyInputSkipsProvider(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	s := newService(p)

	res := s.Correct(context.Background(), "   ", 0.5)
	if len(p.CompleteCalls) != 0 {
		t.Errorf("provider called %d times for empty input, want 0", len(p.CompleteCalls))
	}
	if res.CorrectedText != "" || res.Fallback || res.RequiresConfirmation {
		t.Errorf("empty input should be a quiet no-op, got %+v", res)
	}
}

func TestCorrect_ProviderErrorFallsBack(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteErr: errors.New("connection refused")}
	s := newService(p)

	raw := "النص الخام"
	res := s.Correct(context.Background(), raw, 0.6)
	if !res.Fallback {
		t.Fatal("expected fallback on provider error")
	}
	if res.CorrectedText != raw {
		t.Errorf("CorrectedText = %q, want raw text verbatim", res.CorrectedText)
	}
	if !res.RequiresConfirmation {
		t.Error("fallback must set RequiresConfirmation")
	}
	if res.ChangesMade {
		t.Error("fallback must not claim changes")
	}
}

func TestCorrect_MalformedJSONFallsBack(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Sure! Here is the corrected text: عايز أحجز"},
	}
	s := newService(p)

	res := s.Correct(context.Background(), "عايز احجز", 0.6)
	if !res.Fallback {
		t.Fatal("expected fallback for non-JSON response")
	}
	if res.CorrectedText != "عايز احجز" {
		t.Errorf("CorrectedText = %q, want raw text", res.CorrectedText)
	}
}

func TestCorrect_StripsMarkdownFences(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "```json\n{\"corrected_text\": \"كده تمام.\", \"requires_confirmation\": false, \"changes_made\": true}\n```",
		},
	}
	s := newService(p)

	res := s.Correct(context.Background(), "كده تمام", 0.6)
	if res.Fallback {
		t.Fatal("fenced JSON should still parse")
	}
	if res.CorrectedText != "كده تمام." {
		t.Errorf("CorrectedText = %q", res.CorrectedText)
	}
}

func TestCorrect_EmptyCorrectedTextFallsBack(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"corrected_text": "", "requires_confirmation": false, "changes_made": false}`,
		},
	}
	s := newService(p)

	res := s.Correct(context.Background(), "نص", 0.6)
	if !res.Fallback {
		t.Fatal("expected fallback for empty corrected_text")
	}
}

func TestCorrect_HighConfidenceForcesConfirmation(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"corrected_text": "النص المصحح.", "requires_confirmation": false, "changes_made": true}`,
		},
	}
	s := newService(p, correct.WithMaxDriftRatio(1))

	res := s.Correct(context.Background(), "النص المصحح", 0.85)
	if !res.RequiresConfirmation {
		t.Error("confidence above 0.8 must force RequiresConfirmation")
	}
}

func TestCorrect_ExcessiveDriftFallsBack(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"corrected_text": "something entirely different from the input", "requires_confirmation": false, "changes_made": true}`,
		},
	}
	s := newService(p)

	raw := "عايز"
	res := s.Correct(context.Background(), raw, 0.6)
	if !res.Fallback {
		t.Fatal("expected fallback when correction rewrites the text")
	}
	if res.CorrectedText != raw {
		t.Errorf("CorrectedText = %q, want raw text", res.CorrectedText)
	}
}

func TestCorrect_NilProviderPassesThrough(t *testing.T) {
	t.Parallel()

	s := newService(nil)

	res := s.Correct(context.Background(), "النص الخام", 0.6)
	if res.Fallback {
		t.Error("nil provider pass-through is not a fallback")
	}
	if res.CorrectedText != "النص الخام" {
		t.Errorf("CorrectedText = %q, want raw text", res.CorrectedText)
	}
	if res.RequiresConfirmation {
		t.Error("pass-through should not flag review by itself")
	}
}
