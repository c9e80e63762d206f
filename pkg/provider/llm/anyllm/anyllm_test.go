package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/clinivox/clinivox/pkg/provider/llm"
)

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that OpenAI provider constructs successfully with an API key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", p.model)
	}
}

// TestNew_OpenAI_MissingAPIKey checks that OpenAI returns an error when no API key is available.
// This relies on OPENAI_API_KEY not being set in the test environment.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "") // Ensure env var is clear.
	_, err := New("openai", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := NewOllama("gemma2:27b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestConvenienceConstructors checks all convenience constructors delegate correctly.
func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"NewOpenAI", func() (*Provider, error) { return NewOpenAI("gpt-4o", anyllmlib.WithAPIKey("sk-test")) }},
		{"NewAnthropic", func() (*Provider, error) {
			return NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-test"))
		}},
		{"NewOllama", func() (*Provider, error) { return NewOllama("llama3") }},
		{"NewLlamaCpp", func() (*Provider, error) { return NewLlamaCpp("llama3") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			if p == nil {
				t.Fatalf("%s: expected non-nil provider", tt.name)
			}
		})
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptPrepended checks the system prompt becomes the
// first message.
func TestBuildParams_SystemPromptPrepended(t *testing.T) {
	p := &Provider{model: "gemma2:27b"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a clinical information extractor.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Extract from this transcript."},
		},
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("expected first message role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("expected second message role user, got %q", params.Messages[1].Role)
	}
}

// TestBuildParams_SamplingForwarded checks temperature and max tokens are
// forwarded as pointers.
func TestBuildParams_SamplingForwarded(t *testing.T) {
	p := &Provider{model: "gemma2:27b"}
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: 0.1,
		MaxTokens:   4000,
	})
	if params.Temperature == nil || *params.Temperature != 0.1 {
		t.Errorf("Temperature not forwarded: %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 4000 {
		t.Errorf("MaxTokens not forwarded: %v", params.MaxTokens)
	}
}

// TestBuildParams_ZeroSamplingOmitted checks zero values leave the backend
// defaults in place.
func TestBuildParams_ZeroSamplingOmitted(t *testing.T) {
	p := &Provider{model: "gemma2:27b"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Errorf("expected nil Temperature, got %v", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("expected nil MaxTokens, got %v", *params.MaxTokens)
	}
}
