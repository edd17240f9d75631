package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/portal-treinamento/core/internal/chat"
)

type wsEvent struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Error    string `json:"error"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func dialChat(t *testing.T, env *testEnv) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) wsEvent {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev wsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func writeJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestChatWebSocketExchange(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &scriptedCompleter{fragments: []string{"Olá", ", ", "turma!"}})
	conn, ctx := dialChat(t, env)

	first := readEvent(t, ctx, conn)
	if first.Type != string(chat.EventMessages) || len(first.Messages) != 1 {
		t.Fatalf("initial event = %+v, want greeting snapshot", first)
	}

	writeJSON(t, ctx, conn, wsMessage{Type: "message", Content: "oi"})

	var fragments strings.Builder
	for {
		ev := readEvent(t, ctx, conn)
		switch ev.Type {
		case string(chat.EventFragment):
			fragments.WriteString(ev.Content)
			continue
		case string(chat.EventMessages):
			continue
		case string(chat.EventError):
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
		if ev.Type != string(chat.EventDone) {
			t.Fatalf("unexpected event %+v", ev)
		}
		last := ev.Messages[len(ev.Messages)-1]
		if last.Role != "assistant" || last.Content != "Olá, turma!" {
			t.Errorf("final message = %+v", last)
		}
		break
	}
	if fragments.String() != "Olá, turma!" {
		t.Errorf("fragments = %q", fragments.String())
	}
}

func TestChatWebSocketPingAndUnknown(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &scriptedCompleter{})
	conn, ctx := dialChat(t, env)
	readEvent(t, ctx, conn)

	writeJSON(t, ctx, conn, wsMessage{Type: "ping"})
	if ev := readEvent(t, ctx, conn); ev.Type != "pong" {
		t.Errorf("ping reply = %+v, want pong", ev)
	}

	writeJSON(t, ctx, conn, wsMessage{Type: "dance"})
	if ev := readEvent(t, ctx, conn); ev.Type != "error" || ev.Error == "" {
		t.Errorf("unknown type reply = %+v, want error", ev)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, ctx, conn); ev.Type != "error" {
		t.Errorf("invalid json reply = %+v, want error", ev)
	}
}

func TestChatWebSocketDisconnectReleasesSession(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	env := newTestEnv(t, &scriptedCompleter{fragments: []string{"nunca"}, gate: gate})
	conn, ctx := dialChat(t, env)
	readEvent(t, ctx, conn)

	writeJSON(t, ctx, conn, wsMessage{Type: "message", Content: "oi"})
	if ev := readEvent(t, ctx, conn); ev.Type != string(chat.EventMessages) {
		t.Fatalf("event = %+v, want messages snapshot", ev)
	}
	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for env.chat.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(gate)
}

func TestChatWebSocketSharedSessionSurvivesOtherTabClosing(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &scriptedCompleter{fragments: []string{"ainda ", "aqui"}})

	tabA, ctxA := dialChat(t, env)
	readEvent(t, ctxA, tabA)
	tabB, ctxB := dialChat(t, env)
	readEvent(t, ctxB, tabB)

	if err := tabA.Close(websocket.StatusNormalClosure, "tab closed"); err != nil {
		t.Fatalf("close tab A: %v", err)
	}
	// Tab A's release is processed asynchronously by the server.
	time.Sleep(50 * time.Millisecond)
	if got := env.chat.ActiveSessions(); got != 1 {
		t.Fatalf("active sessions after tab A closed = %d, want 1", got)
	}
	if n := env.chat.EvictIdle(0); n != 0 {
		t.Fatalf("evicted %d sessions with tab B still connected", n)
	}

	writeJSON(t, ctxB, tabB, wsMessage{Type: "message", Content: "oi"})
	for {
		ev := readEvent(t, ctxB, tabB)
		if ev.Type == string(chat.EventError) {
			t.Fatalf("tab B got error: %s", ev.Error)
		}
		if ev.Type != string(chat.EventDone) {
			continue
		}
		if last := ev.Messages[len(ev.Messages)-1]; last.Content != "ainda aqui" {
			t.Errorf("final message = %+v", last)
		}
		break
	}
}

func TestSendFailureReporting(t *testing.T) {
	t.Parallel()
	live := context.Background()
	closed, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		err    error
		report bool
	}{
		{"success", live, nil, false},
		{"stream failure already published", live, fmt.Errorf("%w: boom", chat.ErrStream), false},
		{"detached while connected", live, chat.ErrDetached, true},
		{"busy", live, chat.ErrBusy, true},
		{"connection closing", closed, chat.ErrDetached, false},
	}
	for _, tt := range tests {
		reason, ok := sendFailure(tt.ctx, tt.err)
		if ok != tt.report {
			t.Errorf("%s: reported = %v, want %v", tt.name, ok, tt.report)
		}
		if ok && reason == "" {
			t.Errorf("%s: empty reason", tt.name)
		}
	}
}
