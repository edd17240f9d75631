// Package chat implements the per-conversation chat controller: it streams
// completions into an in-progress assistant message, optionally grounding
// the prompt in retrieved context, and persists finished exchanges.
package chat

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/portal-treinamento/core/internal/domain"
)

var (
	// ErrEmptyMessage is returned when the user text is blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned when an exchange is already in flight.
	ErrBusy = errors.New("an exchange is already in progress")
	// ErrStream wraps failures of the streaming completion call.
	ErrStream = errors.New("completion stream failed")
	// ErrDetached is returned when the session was detached mid-stream.
	ErrDetached = errors.New("session detached")
)

// CompletionRequest is what the controller sends to the model.
type CompletionRequest struct {
	SystemPrompt string
	History      []domain.ChatMessage
	Message      string
}

// Completer streams a completion as an ordered, finite sequence of text
// fragments. The sequence is consumed once; a consumer that stops early
// must cause the implementation to release the underlying stream.
type Completer interface {
	StreamComplete(ctx context.Context, req CompletionRequest) iter.Seq2[string, error]
}

// ContextLookup returns passages similar to query within a tenant.
type ContextLookup interface {
	Lookup(ctx context.Context, query, tenantID string, threshold float64, topK int) ([]domain.ContextChunk, error)
}

// ExchangeStore persists and lists finished exchanges.
type ExchangeStore interface {
	SaveExchange(ctx context.Context, ex *domain.Exchange) error
	ListExchanges(ctx context.Context, ownerID string) ([]*domain.Exchange, error)
}

// State is the controller's position in an exchange.
type State int

const (
	StateIdle State = iota
	StateAwaitingFirstToken
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstToken:
		return "awaiting_first_token"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Options configures a session.
type Options struct {
	OwnerID      string
	Tenant       domain.Tenant
	Greeting     string
	UseRetrieval bool

	// HistoryLimit bounds how many prior messages go to the model.
	HistoryLimit int

	RetrievalThreshold float64
	RetrievalTopK      int
	RetrievalTimeout   time.Duration
	StreamTimeout      time.Duration
	SaveTimeout        time.Duration

	// Now is used for message timestamps and elapsed time.
	Now func() time.Time
}

// DefaultOptions returns the defaults used by the portal.
func DefaultOptions() Options {
	return Options{
		Greeting:           "Olá! Sou o assistente virtual do portal de treinamentos. Como posso ajudar?",
		UseRetrieval:       true,
		HistoryLimit:       10,
		RetrievalThreshold: 0.75,
		RetrievalTopK:      5,
		RetrievalTimeout:   10 * time.Second,
		StreamTimeout:      2 * time.Minute,
		SaveTimeout:        5 * time.Second,
		Now:                time.Now,
	}
}

func (o *Options) fillDefaults() {
	d := DefaultOptions()
	if o.Greeting == "" {
		o.Greeting = d.Greeting
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	if o.RetrievalTopK <= 0 {
		o.RetrievalTopK = d.RetrievalTopK
	}
	if o.RetrievalTimeout <= 0 {
		o.RetrievalTimeout = d.RetrievalTimeout
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = d.StreamTimeout
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = d.SaveTimeout
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.Tenant.Name == "" {
		o.Tenant.Name = o.Tenant.ID
	}
}
