package groq

import (
	"testing"

	"github.com/atelic-ai/voceria/pkg/provider/llm"
	"github.com/atelic-ai/voceria/pkg/types"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "llama-3.3-70b-versatile"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("key", "llama-3.3-70b-versatile"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model       string
		wantCtx     int
		wantMaxOut  int
	}{
		{"llama-3.3-70b-versatile", 128_000, 32_768},
		{"llama-3.1-8b-instant", 128_000, 8_192},
		{"mixtral-8x7b-32768", 32_768, 32_768},
		{"gemma2-9b-it", 8_192, 8_192},
		{"some-future-model", 128_000, 8_192},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantCtx {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantCtx)
			}
			if caps.MaxOutputTokens != tt.wantMaxOut {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.wantMaxOut)
			}
			if !caps.SupportsStreaming {
				t.Error("SupportsStreaming should be true")
			}
		})
	}
}

func TestCountTokens_Approximation(t *testing.T) {
	p, err := New("key", "llama-3.3-70b-versatile")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 40 chars ≈ 10 tokens + 4 overhead.
	msg := types.Message{Role: "user", Content: "0123456789012345678901234567890123456789"}
	n, err := p.CountTokens([]types.Message{msg})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 14 {
		t.Errorf("CountTokens = %d, want 14", n)
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("key", "llama-3.3-70b-versatile")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Run("empty messages rejected", func(t *testing.T) {
		if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
			t.Error("expected error for empty messages")
		}
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		req := llm.CompletionRequest{Messages: []types.Message{{Role: "narrator", Content: "x"}}}
		if _, err := p.buildParams(req); err == nil {
			t.Error("expected error for unknown role")
		}
	})

	t.Run("valid request", func(t *testing.T) {
		req := llm.CompletionRequest{
			Messages: []types.Message{
				{Role: "system", Content: "eres un asistente"},
				{Role: "user", Content: "hola"},
				{Role: "assistant", Content: "buenos días"},
			},
			Temperature: 0.4,
			MaxTokens:   256,
		}
		params, err := p.buildParams(req)
		if err != nil {
			t.Fatalf("buildParams: %v", err)
		}
		if len(params.Messages) != 3 {
			t.Errorf("len(messages) = %d, want 3", len(params.Messages))
		}
		if string(params.Model) != "llama-3.3-70b-versatile" {
			t.Errorf("model = %q", params.Model)
		}
		if !params.Temperature.Valid() || params.Temperature.Value != 0.4 {
			t.Errorf("temperature = %+v, want 0.4", params.Temperature)
		}
		if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 256 {
			t.Errorf("max tokens = %+v, want 256", params.MaxCompletionTokens)
		}
	})
}
