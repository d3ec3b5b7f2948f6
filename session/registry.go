package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the live sessions of a process.
type Registry struct {
	sessions map[uuid.UUID]*Session
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Lookup parses id and returns the matching session or ErrNotFound.
func (r *Registry) Lookup(id string) (*Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	s, ok := r.Get(parsed)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns every session, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].created.Before(out[j].created) })
	return out
}

// StopAll stops and removes every session.
func (r *Registry) StopAll() {
	for _, s := range r.List() {
		s.Stop()
		r.Remove(s.ID())
	}
}
