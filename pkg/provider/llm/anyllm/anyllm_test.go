package anyllm

import (
	"testing"

	"github.com/sawtlabs/tahrir/pkg/provider/llm"
)

// TestNew_MissingProviderName ensures constructor rejects an empty provider name.
func TestNew_MissingProviderName(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty provider name")
	}
}

// TestNew_MissingModel ensures constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("ollama", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider ensures unknown provider names are rejected.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("quantumllm", "some-model")
	if err == nil {
		t.Fatal("expected error for unsupported provider name")
	}
}

// TestBuildParams_SystemPromptFirst checks that the system prompt is injected
// before conversation messages.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a transcription corrector.",
		Messages: []llm.Message{
			{Role: "user", Content: "fix this"},
		},
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("expected first role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("expected second role user, got %q", params.Messages[1].Role)
	}
	if params.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", params.Model)
	}
}

// TestBuildParams_OptionalFields checks temperature and max tokens conversion.
func TestBuildParams_OptionalFields(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("expected max tokens 512, got %v", params.MaxTokens)
	}
}

// TestBuildParams_ZeroOptionalFieldsOmitted checks that zero values are not sent.
func TestBuildParams_ZeroOptionalFieldsOmitted(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Errorf("expected nil temperature, got %v", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("expected nil max tokens, got %v", *params.MaxTokens)
	}
}
