package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/portal-treinamento/core/internal/chat"
)

// outboundBuffer bounds the events queued for one connection.
const outboundBuffer = 64

// ChatWebSocketHandler serves the chat over a WebSocket. Closing the
// connection detaches and releases the session.
type ChatWebSocketHandler struct {
	chat          *chat.Service
	allowedOrigin string
	isDev         bool
}

// NewChatWebSocketHandler creates a new WebSocket chat handler.
func NewChatWebSocketHandler(chatSvc *chat.Service, allowedOrigin string, isDev bool) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{chat: chatSvc, allowedOrigin: allowedOrigin, isDev: isDev}
}

// wsMessage is what the client sends.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServeHTTP handles WebSocket connections.
func (h *ChatWebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", user.UserID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", user.UserID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	key := sessionKey(r, user)
	session := h.chat.Attach(ctx, key, user.TenantID)
	defer h.chat.Release(key)

	out := make(chan any, outboundBuffer)
	push := func(v any) {
		select {
		case out <- v:
		case <-ctx.Done():
		}
	}
	unsubscribe := session.Subscribe(func(ev chat.Event) { push(ev) })
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		writeLoop(ctx, ws, out)
	}()

	slog.Info("Chat WebSocket connected", "user_id", user.UserID, "session_id", key.SessionID)
	push(chat.Event{Type: chat.EventMessages, Messages: session.Messages()})

	h.readLoop(ctx, ws, key, session, push)
	cancel()
	wg.Wait()
	slog.Info("Chat WebSocket disconnected", "user_id", user.UserID, "session_id", key.SessionID)
}

func (h *ChatWebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, key chat.SessionKey, session *chat.Session, push func(any)) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				slog.Debug("WebSocket read error", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			push(chat.Event{Type: chat.EventError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "message":
			go func(text string) {
				_, err := session.Send(ctx, text)
				if reason, ok := sendFailure(ctx, err); ok {
					push(chat.Event{Type: chat.EventError, Error: reason})
				}
			}(msg.Content)
		case "ping":
			push(map[string]string{"type": "pong"})
		case "history":
			push(chat.Event{Type: chat.EventMessages, Messages: session.Messages()})
		case "reset":
			if err := h.chat.Reset(ctx, key); err != nil {
				push(chat.Event{Type: chat.EventError, Error: err.Error()})
			}
		default:
			push(chat.Event{Type: chat.EventError, Error: "unknown message type"})
		}
	}
}

// sendFailure returns the error to report for a failed Send. Stream
// failures were already published by the session, and nothing is reported
// once the connection is going away.
func sendFailure(ctx context.Context, err error) (string, bool) {
	switch {
	case err == nil, errors.Is(err, chat.ErrStream), ctx.Err() != nil:
		return "", false
	case errors.Is(err, chat.ErrDetached):
		return "conversation ended, reconnect to continue", true
	default:
		return err.Error(), true
	}
}

func writeLoop(ctx context.Context, ws *websocket.Conn, out <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-out:
			data, err := json.Marshal(v)
			if err != nil {
				slog.Warn("failed to serialize websocket event", "error", err)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("WebSocket write error", "error", err)
				return
			}
		}
	}
}

func (h *ChatWebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
