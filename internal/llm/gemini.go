package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/portal-treinamento/core/internal/chat"
	"github.com/portal-treinamento/core/internal/domain"
	"google.golang.org/genai"
)

// GeminiProvider streams completions from the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a Gemini client. No network I/O happens here.
func NewGeminiProvider(ctx context.Context, config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", errMissingAPIKey)
	}
	config.Provider = ProviderGemini
	config.fillDefaults()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init gemini client: %w", err)
	}
	return &GeminiProvider{client: client, config: config}, nil
}

// StreamComplete implements chat.Completer.
func (p *GeminiProvider) StreamComplete(ctx context.Context, req chat.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, cfg := geminiContents(req, p.config)
		for chunk, err := range p.client.Models.GenerateContentStream(ctx, p.config.Model, contents, cfg) {
			if err != nil {
				yield("", fmt.Errorf("stream error: %w", err))
				return
			}
			text := chunkText(chunk)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func geminiContents(req chat.CompletionRequest, config Config) ([]*genai.Content, *genai.GenerateContentConfig) {
	turns := conversation(req)
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.RoleUser
		if t.role == string(domain.RoleAssistant) {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.content, genai.Role(role)))
	}

	temperature := float32(config.temperature())
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(config.MaxTokens), //nolint:gosec // bounded by config validation
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	return contents, cfg
}

func chunkText(chunk *genai.GenerateContentResponse) string {
	if chunk == nil || len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range chunk.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
