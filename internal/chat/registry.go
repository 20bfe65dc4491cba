package chat

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Session is the server-side record of one logged-in connection.
type Session struct {
	ConnectionID string    `json:"connectionId"`
	Username     string    `json:"username"`
	IsTyping     bool      `json:"isTyping"`
	LastActive   time.Time `json:"lastActive"`
}

// Registry maps connection identifiers to sessions. It is the single source of
// truth for who is online. Callers only ever see copies of the stored sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	now      func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Register creates or replaces the session for connectionID. Re-registering an
// existing identifier keeps its position in the snapshot order.
func (r *Registry) Register(connectionID, username string) (Session, error) {
	if connectionID == "" {
		return Session{}, fmt.Errorf("%w: connection id must not be empty", ErrValidation)
	}
	if username == "" {
		return Session{}, fmt.Errorf("%w: username must not be empty", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; !exists {
		r.order = append(r.order, connectionID)
	}
	s := &Session{
		ConnectionID: connectionID,
		Username:     username,
		LastActive:   r.now(),
	}
	r.sessions[connectionID] = s
	return *s, nil
}

// Get returns a copy of the session for connectionID.
func (r *Registry) Get(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Remove deletes the session for connectionID and returns it. Unknown
// identifiers are a no-op so duplicate or late disconnects are harmless.
func (r *Registry) Remove(connectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connectionID)
	if i := slices.Index(r.order, connectionID); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return *s, true
}

// Touch records activity for connectionID.
func (r *Registry) Touch(connectionID string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return false
	}
	s.LastActive = at
	return true
}

// SetTyping updates the typing flag and reports the previous value.
func (r *Registry) SetTyping(connectionID string, isTyping bool) (prev bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return false, false
	}
	prev = s.IsTyping
	s.IsTyping = isTyping
	return prev, true
}

// Snapshot returns all sessions in registration order. The result is never nil.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.sessions[id])
	}
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
