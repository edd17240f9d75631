// Package api provides HTTP handlers for the portal API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/portal-treinamento/core/internal/chat"
	"github.com/portal-treinamento/core/internal/domain"
	"github.com/portal-treinamento/core/internal/identity"
	"github.com/portal-treinamento/core/internal/store"
	"github.com/portal-treinamento/core/internal/timeline"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Handler serves the timeline, class and chat endpoints.
type Handler struct {
	repo    store.Repository
	chat    *chat.Service
	now     timeline.Clock
	limiter func(http.Handler) http.Handler
}

// NewHandler creates a Handler. now may be nil to use the wall clock.
func NewHandler(repo store.Repository, chatSvc *chat.Service, now timeline.Clock) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{repo: repo, chat: chatSvc, now: now}
}

// WithChatLimit installs a middleware applied to chat sends only.
func (h *Handler) WithChatLimit(mw func(http.Handler) http.Handler) *Handler {
	h.limiter = mw
	return h
}

// RegisterRoutes registers the API routes (requires identity middleware).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/timeline/preview", h.PreviewTimeline)

		r.Route("/classes", func(r chi.Router) {
			r.Get("/", h.ListClasses)
			r.Post("/", h.CreateClass)
			r.Get("/{id}", h.GetClass)
			r.Get("/{id}/timeline", h.ClassTimeline)
		})

		r.Get("/segments/{id}", h.GetSegment)
		r.Put("/segments/{id}", h.PutSegment)

		r.Route("/chat", func(r chi.Router) {
			send := http.Handler(http.HandlerFunc(h.Chat))
			if h.limiter != nil {
				send = h.limiter(send)
			}
			r.Method(http.MethodPost, "/", send)
			r.Get("/history", h.ChatHistory)
			r.Delete("/", h.ResetChat)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain and service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidClass),
		errors.Is(err, domain.ErrInvalidSeg),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// not echoed to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

func currentUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	u, ok := identity.UserFromContext(r.Context())
	if !ok || u.UserID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return domain.User{}, false
	}
	return u, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			Error(w, http.StatusBadRequest, "request body is empty")
		default:
			Error(w, http.StatusBadRequest, "invalid request body")
		}
		return false
	}
	return true
}
