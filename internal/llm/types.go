// Package llm adapts hosted language models to the chat controller: a
// streaming completion client per provider and an embedding client used by
// retrieval.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/portal-treinamento/core/internal/chat"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var (
	errMissingAPIKey   = errors.New("API key is required")
	errUnknownProvider = errors.New("unknown chat provider")
)

// Config represents provider configuration.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	// Temperature is the sampling temperature. Nil selects the default;
	// zero is a valid deterministic setting.
	Temperature *float64
}

const defaultTemperature = 0.3

// Float64 returns a pointer to v, for optional Config fields.
func Float64(v float64) *float64 { return &v }

func (c Config) temperature() float64 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

func (c *Config) fillDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Temperature == nil {
		c.Temperature = Float64(defaultTemperature)
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderGemini:
			c.Model = "gemini-2.5-flash-lite"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
}

// NewCompleter builds the streaming client named by cfg.Provider.
func NewCompleter(ctx context.Context, cfg Config) (chat.Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownProvider, cfg.Provider)
	}
}

// turn is a provider-neutral conversation entry.
type turn struct {
	role    string
	content string
}

// conversation flattens a request into history turns followed by the new
// user message. The system prompt is carried separately by each provider.
func conversation(req chat.CompletionRequest) []turn {
	turns := make([]turn, 0, len(req.History)+1)
	for _, m := range req.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, turn{role: string(m.Role), content: m.Content})
	}
	return append(turns, turn{role: "user", content: req.Message})
}
