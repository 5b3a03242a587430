package session

import (
	"sync"
)

// Registry is the table of live sessions.
type Registry struct {
	mux      sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Add registers a session under its id.
func (r *Registry) Add(session *Session) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.sessions[session.Id()] = session
}

// Remove closes and unregisters the session with the given id; removing an
// unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mux.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mux.Unlock()
	if ok {
		session.Close()
	}
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.sessions)
}

// Broadcast delivers message to a snapshot of the current sessions and
// returns the ids that failed, so the caller can prune them. Sessions
// registered while the broadcast is in flight are not included.
func (r *Registry) Broadcast(message []byte) []string {
	r.mux.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		snapshot = append(snapshot, session)
	}
	r.mux.RUnlock()

	var failed []string
	for _, session := range snapshot {
		if err := session.Send(message); err != nil {
			failed = append(failed, session.Id())
		}
	}
	return failed
}

// Send delivers message to a single session.
func (r *Registry) Send(id string, message []byte) error {
	session, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	return session.Send(message)
}

// CloseAll closes and unregisters every session.
func (r *Registry) CloseAll() {
	r.mux.Lock()
	sessions := r.sessions
	r.sessions = map[string]*Session{}
	r.mux.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}
