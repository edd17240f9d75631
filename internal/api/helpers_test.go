package api

import (
	"context"
	"iter"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/portal-treinamento/core/internal/chat"
	"github.com/portal-treinamento/core/internal/domain"
	"github.com/portal-treinamento/core/internal/identity"
	"github.com/portal-treinamento/core/internal/store"
)

var testNow = time.Date(2024, 1, 10, 14, 0, 0, 0, time.UTC)

var (
	adminClaro   = domain.User{UserID: "admin-1", Email: "admin@claro.com", Role: domain.RoleAdmin, TenantID: "claro"}
	traineeClaro = domain.User{UserID: "trainee-1", Email: "t@claro.com", Role: domain.RoleTrainee, TenantID: "claro"}
	adminVivo    = domain.User{UserID: "admin-2", Email: "admin@vivo.com", Role: domain.RoleAdmin, TenantID: "vivo"}
)

// scriptedCompleter streams fixed fragments, then fails with err if set.
type scriptedCompleter struct {
	fragments []string
	err       error
	gate      chan struct{}
}

func (c *scriptedCompleter) StreamComplete(ctx context.Context, _ chat.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if c.gate != nil {
			select {
			case <-c.gate:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
		for _, f := range c.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if c.err != nil {
			yield("", c.err)
		}
	}
}

type testEnv struct {
	repo   *store.SQLStore
	chat   *chat.Service
	router http.Handler

	mu   sync.Mutex
	user domain.User
}

func newTestEnv(t *testing.T, completer chat.Completer) *testEnv {
	t.Helper()
	repo, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	opts := chat.DefaultOptions()
	opts.UseRetrieval = false
	svc := chat.NewService(completer, nil, repo, []domain.Tenant{{ID: "claro", Name: "Claro"}}, opts, nil)

	env := &testEnv{repo: repo, chat: svc, user: adminClaro}
	r := chi.NewRouter()
	r.Use(env.identify)
	NewHealthHandler(repo, svc, time.Second).RegisterHealth(r)
	NewHandler(repo, svc, func() time.Time { return testNow }).RegisterRoutes(r)
	r.Handle("/ws/chat", NewChatWebSocketHandler(svc, "*", true))
	env.router = r
	return env
}

func (e *testEnv) as(u domain.User) {
	e.mu.Lock()
	e.user = u
	e.mu.Unlock()
}

func (e *testEnv) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		u := e.user
		e.mu.Unlock()
		ctx := identity.WithUser(r.Context(), u, r.Header.Get(identity.SessionHeaderName))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
