package llm

import (
	"testing"

	"github.com/portal-treinamento/core/internal/chat"
	"github.com/portal-treinamento/core/internal/domain"
	"google.golang.org/genai"
)

func TestGeminiContents(t *testing.T) {
	t.Parallel()

	cfg := Config{Provider: ProviderGemini}
	cfg.fillDefaults()
	contents, gc := geminiContents(chat.CompletionRequest{
		SystemPrompt: "sistema",
		History: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "pergunta"},
			{Role: domain.RoleAssistant, Content: "resposta"},
		},
		Message: "nova",
	}, cfg)

	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	if contents[1].Role != string(genai.RoleModel) || contents[2].Role != string(genai.RoleUser) {
		t.Errorf("roles = %q, %q", contents[1].Role, contents[2].Role)
	}
	if contents[2].Parts[0].Text != "nova" {
		t.Errorf("last content = %q", contents[2].Parts[0].Text)
	}
	if gc.SystemInstruction == nil || gc.SystemInstruction.Parts[0].Text != "sistema" {
		t.Error("system instruction missing")
	}
	if cfg.Model != "gemini-2.5-flash-lite" {
		t.Errorf("default model = %q", cfg.Model)
	}
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	if chunkText(nil) != "" {
		t.Error("nil chunk should be empty")
	}
	chunk := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "Olá"}, {Text: " mundo"}}},
	}}}
	if got := chunkText(chunk); got != "Olá mundo" {
		t.Errorf("chunkText = %q", got)
	}
}

func TestGeminiContentsKeepsZeroTemperature(t *testing.T) {
	t.Parallel()

	cfg := Config{Provider: ProviderGemini, Temperature: Float64(0)}
	cfg.fillDefaults()
	_, gc := geminiContents(chat.CompletionRequest{Message: "oi"}, cfg)
	if gc.Temperature == nil || *gc.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", gc.Temperature)
	}

	unset := Config{Provider: ProviderGemini}
	unset.fillDefaults()
	_, gc = geminiContents(chat.CompletionRequest{Message: "oi"}, unset)
	if gc.Temperature == nil || *gc.Temperature != float32(defaultTemperature) {
		t.Errorf("default temperature = %v, want %v", gc.Temperature, defaultTemperature)
	}
}
