package agent

import (
	"sort"
	"sync"

	"github.com/rickgao/auction-house/internal/model"
)

// Registry holds the sessions of connected agents.
type Registry struct {
	mu       sync.RWMutex
	sessions map[model.ConnID]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[model.ConnID]*Session),
	}
}

// Register adds a session. A session already registered under the same
// connection id is replaced.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ConnID()] = s
}

// Deregister removes a session and reports whether it was present.
// Idempotent.
func (r *Registry) Deregister(id model.ConnID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Lookup returns the session for a connection id.
func (r *Registry) Lookup(id model.ConnID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of every registered session ordered by
// connection id.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ConnID() < result[j].ConnID() })
	return result
}
