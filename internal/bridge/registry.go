package bridge

import "sync"

// Registry is the concurrency-safe mapping from call identifier to Session.
// It also tracks wildcard observers, re-broadcasting their subscription onto
// every session created while they are attached.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	wildcard map[*Observer]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		wildcard: make(map[*Observer]struct{}),
	}
}

// Register adds the session and attaches any current wildcard observers.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	for o := range r.wildcard {
		s.Attach(o)
	}
	r.mu.Unlock()
}

// Lookup returns the session for id, if present.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes the session for id. Called from session teardown; absent
// ids are a no-op so teardown stays idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Subscribe attaches an observer to one session by id. Returns false when no
// such session exists.
func (r *Registry) Subscribe(id string, o *Observer) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Attach(o)
	return true
}

// Unsubscribe detaches an observer from one session, if it still exists.
func (r *Registry) Unsubscribe(id string, o *Observer) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.Detach(o)
	}
}

// SubscribeAll attaches an observer to every current session and to all
// sessions created afterward.
func (r *Registry) SubscribeAll(o *Observer) {
	r.mu.Lock()
	r.wildcard[o] = struct{}{}
	current := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		current = append(current, s)
	}
	r.mu.Unlock()
	for _, s := range current {
		s.Attach(o)
	}
}

// UnsubscribeAll removes a wildcard observer everywhere.
func (r *Registry) UnsubscribeAll(o *Observer) {
	r.mu.Lock()
	delete(r.wildcard, o)
	current := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		current = append(current, s)
	}
	r.mu.Unlock()
	for _, s := range current {
		s.Detach(o)
	}
}

// Shutdown tears down every active session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	current := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		current = append(current, s)
	}
	r.mu.Unlock()
	for _, s := range current {
		s.Teardown()
	}
}
