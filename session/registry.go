package session

import (
	"sort"
	"sync"

	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/persona"
)

// liveSession is one in-memory session: its authoritative state, its bound
// persona registry, and the lock serializing access. Mutating operations
// hold the write lock for their whole duration, so at most one is in flight
// per session; read-only queries share the read lock and run concurrently.
type liveSession struct {
	mu       sync.RWMutex
	state    *dialogue.State
	personas *persona.Registry
}

// Registry is the concurrency-safe keyed store of live sessions. Sessions
// are inserted on start or load, removed only by explicit cleanup, and never
// implicitly evicted. The registry is injected into the orchestrator rather
// than living as an ambient singleton.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*liveSession)}
}

func (r *Registry) get(sessionID string) (*liveSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ls, ok := r.sessions[sessionID]
	return ls, ok
}

func (r *Registry) insert(sessionID string, ls *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = ls
}

func (r *Registry) remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

// IDs returns the ids of all live sessions, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
