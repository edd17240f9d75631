package chat

import (
	"log/slog"
	"sync"
	"time"
)

// SessionKey identifies a conversation: one owner may keep one per tab.
type SessionKey struct {
	OwnerID   string
	SessionID string
}

// entry is a registered session and the number of live connections
// attached to it.
type entry struct {
	session  *Session
	attached int
}

// Registry keeps live sessions per owner and tab.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*entry),
	}
}

// Get returns the session for key, if any.
func (r *Registry) Get(key SessionKey) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.lookup(key); e != nil {
		return e.session
	}
	return nil
}

// GetOrCreate returns the session for key, calling create when absent.
// The boolean reports whether create was called.
func (r *Registry) GetOrCreate(key SessionKey, create func() *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, created := r.getOrCreate(key, create)
	return e.session, created
}

// Attach is GetOrCreate for a long-lived connection. An attached session
// is never evicted and survives Release until its last attachment leaves.
func (r *Registry) Attach(key SessionKey, create func() *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, created := r.getOrCreate(key, create)
	e.attached++
	return e.session, created
}

// Release drops one attachment. The session is detached and forgotten
// once nothing is attached to it.
func (r *Registry) Release(key SessionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.lookup(key)
	if e == nil {
		return
	}
	if e.attached > 1 {
		e.attached--
		return
	}
	r.removeLocked(key)
}

// Remove detaches and forgets the session for key regardless of
// attachments.
func (r *Registry) Remove(key SessionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(key)
}

// EvictIdle removes sessions unused for longer than maxIdle. Sessions with
// an exchange in flight or an attached connection are kept.
func (r *Registry) EvictIdle(maxIdle time.Duration, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for owner, sessions := range r.active {
		for sid, e := range sessions {
			s := e.session
			if e.attached > 0 || s.State() != StateIdle || now.Sub(s.LastUsed()) <= maxIdle {
				continue
			}
			s.Detach()
			delete(sessions, sid)
			evicted++
			slog.Debug("Chat session evicted", "owner_id", owner, "session_id", sid)
		}
		if len(sessions) == 0 {
			delete(r.active, owner)
		}
	}
	return evicted
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sessions := range r.active {
		n += len(sessions)
	}
	return n
}

func (r *Registry) lookup(key SessionKey) *entry {
	if sessions, ok := r.active[key.OwnerID]; ok {
		return sessions[key.SessionID]
	}
	return nil
}

func (r *Registry) getOrCreate(key SessionKey, create func() *Session) (*entry, bool) {
	sessions, ok := r.active[key.OwnerID]
	if !ok {
		sessions = make(map[string]*entry)
		r.active[key.OwnerID] = sessions
	}
	if e, ok := sessions[key.SessionID]; ok {
		return e, false
	}
	e := &entry{session: create()}
	sessions[key.SessionID] = e
	slog.Debug("Chat session registered", "owner_id", key.OwnerID, "session_id", key.SessionID)
	return e, true
}

func (r *Registry) removeLocked(key SessionKey) {
	sessions, ok := r.active[key.OwnerID]
	if !ok {
		return
	}
	if e, exists := sessions[key.SessionID]; exists {
		e.session.Detach()
		delete(sessions, key.SessionID)
		if len(sessions) == 0 {
			delete(r.active, key.OwnerID)
		}
	}
}
