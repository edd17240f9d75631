package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"

	"github.com/portal-treinamento/core/internal/chat"
	"github.com/portal-treinamento/core/internal/domain"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider streams completions from any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", errMissingAPIKey)
	}
	config.Provider = ProviderOpenAI
	config.fillDefaults()

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// StreamComplete implements chat.Completer. Stopping the iteration closes
// the HTTP stream.
func (p *OpenAIProvider) StreamComplete(ctx context.Context, req chat.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       p.config.Model,
			Messages:    openAIMessages(req),
			MaxTokens:   p.config.MaxTokens,
			Temperature: openAITemperature(p.config.temperature()),
			Stream:      true,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to create stream: %w", err))
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("stream error: %w", err))
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			if content := response.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
	}
}

func openAIMessages(req chat.CompletionRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, t := range conversation(req) {
		role := openai.ChatMessageRoleUser
		if t.role == string(domain.RoleAssistant) {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.content})
	}
	return msgs
}

// openAITemperature maps a temperature onto the request field. The client
// omits a zero value from the request body, which the API treats as 1, so
// zero is sent as the smallest positive float instead.
func openAITemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
