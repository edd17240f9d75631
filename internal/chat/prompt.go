package chat

import (
	"fmt"
	"strings"

	"github.com/portal-treinamento/core/internal/domain"
)

// contextHeading introduces retrieved passages in the system prompt.
const contextHeading = "## Documentação Relevante"

// BuildSystemPrompt assembles the system instruction for a tenant. The
// context section is present only when contextText is non-empty.
func BuildSystemPrompt(tenantName, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Você é o assistente virtual do portal de treinamentos da %s. ", tenantName)
	b.WriteString("Responda em português, de forma clara e objetiva, ajudando instrutores, gestores e treinandos ")
	b.WriteString("com dúvidas sobre turmas, cronogramas, manuais e acessos. ")
	b.WriteString("Se não souber a resposta, diga isso e sugira procurar o gestor responsável.")
	if strings.TrimSpace(contextText) != "" {
		b.WriteString("\n\n")
		b.WriteString(contextHeading)
		b.WriteString("\nUse as informações abaixo para fundamentar a resposta:\n\n")
		b.WriteString(contextText)
	}
	return b.String()
}

// FormatContext renders retrieved chunks as one context block.
func FormatContext(chunks []domain.ContextChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", c.SourceName, text))
	}
	return strings.Join(parts, "\n\n")
}

// boundedHistory keeps the last limit non-synthetic, non-empty messages.
func boundedHistory(msgs []domain.ChatMessage, limit int) []domain.ChatMessage {
	filtered := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Synthetic || strings.TrimSpace(m.Content) == "" {
			continue
		}
		filtered = append(filtered, m)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}
