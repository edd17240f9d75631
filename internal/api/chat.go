package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/portal-treinamento/core/internal/chat"
	"github.com/portal-treinamento/core/internal/domain"
	"github.com/portal-treinamento/core/internal/identity"
)

func sessionKey(r *http.Request, user domain.User) chat.SessionKey {
	return chat.SessionKey{OwnerID: user.UserID, SessionID: identity.SessionIDFromContext(r.Context())}
}

// Chat runs one exchange and streams it as server-sent events: a
// "fragment" event per streamed piece, then "done" with the final
// assistant message or a single "error".
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		fail(w, r, chat.ErrEmptyMessage)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	session := h.chat.Session(r.Context(), sessionKey(r, user), user.TenantID)
	if session.State() != chat.StateIdle {
		fail(w, r, chat.ErrBusy)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := &sseStream{w: w, flusher: flusher}
	unsubscribe := session.Subscribe(func(ev chat.Event) {
		switch ev.Type {
		case chat.EventFragment:
			stream.send("fragment", map[string]string{"content": ev.Fragment})
		case chat.EventError:
			stream.send("error", map[string]string{"error": ev.Error})
		}
	})
	defer unsubscribe()

	msg, err := session.Send(r.Context(), req.Message)
	switch {
	case err == nil:
		stream.send("done", msg)
	case errors.Is(err, chat.ErrStream):
		// already published by the session as an error event
	default:
		stream.send("error", map[string]string{"error": err.Error()})
	}
}

// ChatHistory loads the caller's persisted history into the session and
// returns its messages.
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	session := h.chat.Session(r.Context(), sessionKey(r, user), user.TenantID)
	if err := session.LoadHistory(r.Context(), user.UserID); err != nil && !errors.Is(err, chat.ErrBusy) {
		slog.Warn("Failed to reload chat history", "user_id", user.UserID, "error", err)
	}
	JSON(w, http.StatusOK, historyResponse{Messages: session.Messages(), State: session.State().String()})
}

// ResetChat clears the caller's conversation and persisted history.
func (h *Handler) ResetChat(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.chat.Reset(r.Context(), sessionKey(r, user)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sseStream serializes event writes; observers run on the exchange goroutine
// while the handler writes the final event.
type sseStream struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	broken  bool
}

func (s *sseStream) send(event string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to serialize SSE event", "event", event, "error", err)
		return
	}
	if err := writeSSE(s.w, event, string(data)); err != nil {
		slog.Debug("failed to write SSE event", "event", event, "error", err)
		s.broken = true
		return
	}
	s.flusher.Flush()
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
