package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/portal-treinamento/core/internal/domain"
)

var errEmptyCompletion = errors.New("model returned an empty response")

// Session is a single conversation. Only one exchange may be in flight at a
// time; a Send while another is running fails with ErrBusy.
type Session struct {
	mu        sync.Mutex
	opts      Options
	completer Completer
	lookup    ContextLookup
	store     ExchangeStore
	logger    *slog.Logger

	state     State
	messages  []domain.ChatMessage
	observers map[int]Observer
	nextObsID int
	detached  bool
	lastUsed  time.Time
}

// NewSession creates a session holding only the synthetic greeting.
// lookup and store may be nil, which disables retrieval and persistence.
func NewSession(opts Options, completer Completer, lookup ContextLookup, store ExchangeStore, logger *slog.Logger) *Session {
	opts.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		opts:      opts,
		completer: completer,
		lookup:    lookup,
		store:     store,
		logger:    logger.With("owner_id", opts.OwnerID, "tenant_id", opts.Tenant.ID),
		observers: make(map[int]Observer),
		lastUsed:  opts.Now(),
	}
	s.messages = []domain.ChatMessage{s.greeting()}
	return s
}

func (s *Session) greeting() domain.ChatMessage {
	return domain.ChatMessage{
		ID:        "greeting",
		Role:      domain.RoleAssistant,
		Content:   s.opts.Greeting,
		Timestamp: s.opts.Now(),
		Synthetic: true,
	}
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current exchange state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastUsed returns when the session last started an exchange or was created.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Subscribe registers an observer and returns a function removing it.
func (s *Session) Subscribe(obs Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = obs
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Detach stops the session from applying or publishing anything further.
// An in-flight stream is abandoned at its next fragment.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
	s.observers = make(map[int]Observer)
}

// Send runs one exchange: the user message and an empty assistant
// placeholder are appended at once, retrieval runs if enabled, and the
// completion is streamed into the placeholder. It returns the finished
// assistant message.
//
//nolint:gocyclo // The exchange is one linear sequence of steps with an exit per failure mode.
func (s *Session) Send(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return domain.ChatMessage{}, ErrDetached
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return domain.ChatMessage{}, ErrBusy
	}
	started := s.opts.Now()
	exchangeID := uuid.NewString()
	prior := boundedHistory(s.messages, s.opts.HistoryLimit)
	placeholderID := assistantMessageID(exchangeID)
	s.messages = append(s.messages,
		domain.ChatMessage{ID: userMessageID(exchangeID), Role: domain.RoleUser, Content: text, Timestamp: started},
		domain.ChatMessage{ID: placeholderID, Role: domain.RoleAssistant, Timestamp: started},
	)
	s.state = StateAwaitingFirstToken
	s.lastUsed = started
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventMessages, Messages: snapshot})

	contextText := s.retrieve(ctx, text)
	req := CompletionRequest{
		SystemPrompt: BuildSystemPrompt(s.opts.Tenant.Name, contextText),
		History:      prior,
		Message:      text,
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.opts.StreamTimeout)
	defer cancel()

	var streamErr error
	for fragment, err := range s.completer.StreamComplete(streamCtx, req) {
		if err != nil {
			streamErr = err
			break
		}
		if fragment == "" {
			continue
		}
		if !s.appendFragment(placeholderID, fragment) {
			s.setIdle()
			s.logger.Info("Chat session detached mid-stream, discarding remaining fragments")
			return domain.ChatMessage{}, ErrDetached
		}
	}

	s.mu.Lock()
	final, ok := s.findLocked(placeholderID)
	if streamErr == nil && (!ok || strings.TrimSpace(final.Content) == "") {
		streamErr = errEmptyCompletion
	}
	if streamErr != nil {
		s.removeLocked(placeholderID)
		s.state = StateIdle
		detached := s.detached
		snapshot = s.snapshotLocked()
		s.mu.Unlock()

		wrapped := fmt.Errorf("%w: %w", ErrStream, streamErr)
		s.logger.Error("Chat exchange failed", "error", streamErr)
		if !detached {
			s.emit(Event{Type: EventMessages, Messages: snapshot})
			s.emit(Event{Type: EventError, Err: wrapped, Error: wrapped.Error()})
		}
		return domain.ChatMessage{}, wrapped
	}
	s.state = StateIdle
	snapshot = s.snapshotLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventDone, Messages: snapshot})

	s.persist(ctx, &domain.Exchange{
		ID:            exchangeID,
		OwnerID:       s.opts.OwnerID,
		TenantID:      s.opts.Tenant.ID,
		UserText:      text,
		AssistantText: final.Content,
		ElapsedMs:     s.opts.Now().Sub(started).Milliseconds(),
		CreatedAt:     started,
	})
	return final, nil
}

// LoadHistory merges persisted exchanges of ownerID, oldest first, after
// the greeting. Messages already in the session are kept after the history
// and never duplicated.
func (s *Session) LoadHistory(ctx context.Context, ownerID string) error {
	if s.store == nil {
		return nil
	}
	if s.State() != StateIdle {
		return ErrBusy
	}

	exchanges, err := s.store.ListExchanges(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(exchanges) == 0 {
		return nil
	}
	history := ExpandExchanges(exchanges)

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	seen := make(map[string]struct{}, len(history))
	for _, m := range history {
		seen[m.ID] = struct{}{}
	}

	greeting := s.greeting()
	var live []domain.ChatMessage
	for _, m := range s.messages {
		if m.Synthetic {
			greeting = m
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		live = append(live, m)
	}
	merged := make([]domain.ChatMessage, 0, 1+len(history)+len(live))
	merged = append(merged, greeting)
	merged = append(merged, history...)
	merged = append(merged, live...)
	s.messages = merged
	detached := s.detached
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if !detached {
		s.emit(Event{Type: EventMessages, Messages: snapshot})
	}
	return nil
}

// Reset drops every message but the greeting.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.messages = []domain.ChatMessage{s.greeting()}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventMessages, Messages: snapshot})
	return nil
}

// ExpandExchanges turns persisted exchanges into user/assistant pairs.
func ExpandExchanges(exchanges []*domain.Exchange) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, 2*len(exchanges))
	for _, ex := range exchanges {
		if ex == nil {
			continue
		}
		answeredAt := ex.CreatedAt.Add(time.Duration(ex.ElapsedMs) * time.Millisecond)
		out = append(out,
			domain.ChatMessage{ID: userMessageID(ex.ID), Role: domain.RoleUser, Content: ex.UserText, Timestamp: ex.CreatedAt},
			domain.ChatMessage{ID: assistantMessageID(ex.ID), Role: domain.RoleAssistant, Content: ex.AssistantText, Timestamp: answeredAt},
		)
	}
	return out
}

func userMessageID(exchangeID string) string      { return exchangeID + ":user" }
func assistantMessageID(exchangeID string) string { return exchangeID + ":assistant" }

func (s *Session) retrieve(ctx context.Context, query string) (contextText string) {
	if !s.opts.UseRetrieval || s.lookup == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Context lookup panicked, continuing without context", "panic", r)
			contextText = ""
		}
	}()

	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.RetrievalTimeout)
	defer cancel()

	chunks, err := s.lookup.Lookup(lookupCtx, query, s.opts.Tenant.ID, s.opts.RetrievalThreshold, s.opts.RetrievalTopK)
	if err != nil {
		s.logger.Warn("Context lookup failed, continuing without context", "error", err)
		return ""
	}
	return FormatContext(chunks)
}

func (s *Session) persist(ctx context.Context, ex *domain.Exchange) {
	if s.store == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Saving exchange panicked", "panic", r, "exchange_id", ex.ID)
		}
	}()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SaveTimeout)
	defer cancel()
	if err := s.store.SaveExchange(saveCtx, ex); err != nil {
		s.logger.Warn("Failed to save chat exchange", "error", err, "exchange_id", ex.ID)
	}
}

// appendFragment grows the placeholder. It returns false once detached.
func (s *Session) appendFragment(placeholderID, fragment string) bool {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return false
	}
	idx := s.indexLocked(placeholderID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[idx].Content += fragment
	s.state = StateStreaming
	s.mu.Unlock()

	s.emit(Event{Type: EventFragment, Fragment: fragment})
	return true
}

func (s *Session) setIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(ev)
	}
}

func (s *Session) snapshotLocked() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) indexLocked(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) findLocked(id string) (domain.ChatMessage, bool) {
	if i := s.indexLocked(id); i >= 0 {
		return s.messages[i], true
	}
	return domain.ChatMessage{}, false
}

func (s *Session) removeLocked(id string) {
	if i := s.indexLocked(id); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
	}
}
