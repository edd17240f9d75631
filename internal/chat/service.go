package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/portal-treinamento/core/internal/domain"
)

// exchangeDeleter is implemented by stores that can forget an owner's history.
type exchangeDeleter interface {
	DeleteExchanges(ctx context.Context, ownerID string) (int64, error)
}

// Service hands out sessions to the transports and owns their lifecycle.
type Service struct {
	completer Completer
	lookup    ContextLookup
	store     ExchangeStore
	registry  *Registry
	tenants   map[string]domain.Tenant
	base      Options
	logger    *slog.Logger
}

// NewService creates a chat service. base supplies the per-session options;
// OwnerID and Tenant are filled per session.
func NewService(completer Completer, lookup ContextLookup, store ExchangeStore, tenants []domain.Tenant, base Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	byID := make(map[string]domain.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}
	return &Service{
		completer: completer,
		lookup:    lookup,
		store:     store,
		registry:  NewRegistry(),
		tenants:   byID,
		base:      base,
		logger:    logger,
	}
}

// Tenant resolves a tenant by ID, falling back to the ID as display name.
func (s *Service) Tenant(id string) domain.Tenant {
	if t, ok := s.tenants[id]; ok {
		return t
	}
	return domain.Tenant{ID: id, Name: id}
}

// Session returns the conversation for the key, creating it and loading the
// owner's history on first use. A history failure leaves the session with
// only its greeting.
func (s *Service) Session(ctx context.Context, key SessionKey, tenantID string) *Session {
	session, created := s.registry.GetOrCreate(key, s.creator(key, tenantID))
	if created {
		s.loadHistory(ctx, session, key)
	}
	return session
}

// Attach returns the conversation for a long-lived connection. Every
// Attach must be paired with a Release; the session outlives the
// connection while other connections remain attached.
func (s *Service) Attach(ctx context.Context, key SessionKey, tenantID string) *Session {
	session, created := s.registry.Attach(key, s.creator(key, tenantID))
	if created {
		s.loadHistory(ctx, session, key)
	}
	return session
}

func (s *Service) creator(key SessionKey, tenantID string) func() *Session {
	return func() *Session {
		opts := s.base
		opts.OwnerID = key.OwnerID
		opts.Tenant = s.Tenant(tenantID)
		return NewSession(opts, s.completer, s.lookup, s.store, s.logger)
	}
}

func (s *Service) loadHistory(ctx context.Context, session *Session, key SessionKey) {
	if err := session.LoadHistory(ctx, key.OwnerID); err != nil {
		s.logger.Warn("Failed to load chat history", "owner_id", key.OwnerID, "error", err)
	}
}

// Reset clears the conversation in memory and, when the store supports it,
// the owner's persisted history.
func (s *Service) Reset(ctx context.Context, key SessionKey) error {
	if session := s.registry.Get(key); session != nil {
		if err := session.Reset(); err != nil {
			return err
		}
	}
	d, ok := s.store.(exchangeDeleter)
	if !ok {
		return nil
	}
	deleted, err := d.DeleteExchanges(ctx, key.OwnerID)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	s.logger.Info("Chat history cleared", "owner_id", key.OwnerID, "deleted", deleted)
	return nil
}

// Release drops one attachment, e.g. when a connection goes away. The
// session is detached and forgotten once nothing is attached to it.
func (s *Service) Release(key SessionKey) {
	s.registry.Release(key)
}

// EvictIdle drops sessions idle for longer than maxIdle.
func (s *Service) EvictIdle(maxIdle time.Duration) int {
	return s.registry.EvictIdle(maxIdle, time.Now())
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int {
	return s.registry.Len()
}
