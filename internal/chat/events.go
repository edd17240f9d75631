package chat

import "github.com/portal-treinamento/core/internal/domain"

// EventType identifies what changed in a session.
type EventType string

const (
	// EventMessages carries a full snapshot after a structural change.
	EventMessages EventType = "messages"
	// EventFragment carries one streamed fragment.
	EventFragment EventType = "fragment"
	// EventError reports a failed exchange. Published once per failure.
	EventError EventType = "error"
	// EventDone marks the end of a successful exchange.
	EventDone EventType = "done"
)

// Event is published to session observers.
type Event struct {
	Type     EventType            `json:"type"`
	Messages []domain.ChatMessage `json:"messages,omitempty"`
	Fragment string               `json:"content,omitempty"`
	Err      error                `json:"-"`
	Error    string               `json:"error,omitempty"`
}

// Observer receives session events. It is called synchronously from the
// goroutine running the exchange and must not call back into the session.
type Observer func(Event)
