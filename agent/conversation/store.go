package conversation

import (
	"sort"
	"sync"
)

// SessionStore holds live sessions keyed by id. Its lifecycle belongs to
// whoever creates it; there is no package-level registry.
type SessionStore interface {
	Get(id string) (*Orchestrator, bool)
	Put(id string, session *Orchestrator)
	Remove(id string)
	List() []string
}

// MemorySessionStore is a map-backed SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Orchestrator
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Orchestrator)}
}

func (s *MemorySessionStore) Get(id string) (*Orchestrator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.sessions[id]
	return o, ok
}

func (s *MemorySessionStore) Put(id string, session *Orchestrator) {
	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()
}

func (s *MemorySessionStore) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// List returns the ids in lexical order.
func (s *MemorySessionStore) List() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
