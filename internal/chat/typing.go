package chat

import (
	"sync"
	"time"
)

// TypingTimeout is the default time after which a typing indicator clears itself.
const TypingTimeout = 5 * time.Second

// TypingChange is broadcast when a session's typing flag flips.
type TypingChange struct {
	ConnectionID string `json:"-"`
	Username     string `json:"username"`
	IsTyping     bool   `json:"isTyping"`
}

// afterFunc arms f to run after d and returns a function that cancels it.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type typingTimer struct {
	generation uint64
	stop       func() bool
}

// TypingTracker owns the per-session typing expiry timers. Typing flags live on
// the sessions held by the Registry; the tracker only refers to them by id.
//
// Timers never mutate state directly. When one elapses it calls the fire hook
// with its generation, and the owner is expected to route that back into Expire
// on the goroutine that serialises all other mutations. Expire ignores any
// generation that is no longer the armed one.
//
// Lock order is TypingTracker then Registry.
type TypingTracker struct {
	mu         sync.Mutex
	sessions   *Registry
	timeout    time.Duration
	timers     map[string]typingTimer
	generation uint64
	fire       func(connectionID string, generation uint64)
	after      afterFunc
}

// NewTypingTracker creates a tracker over sessions. A non-positive timeout falls
// back to TypingTimeout.
func NewTypingTracker(sessions *Registry, timeout time.Duration, fire func(connectionID string, generation uint64)) *TypingTracker {
	if timeout <= 0 {
		timeout = TypingTimeout
	}
	if fire == nil {
		fire = func(string, uint64) {}
	}
	return &TypingTracker{
		sessions: sessions,
		timeout:  timeout,
		timers:   make(map[string]typingTimer),
		fire:     fire,
		after:    realAfterFunc,
	}
}

// SetTyping records a typing signal. Starting re-arms the expiry timer every
// time but only reports a change on a not-typing to typing flip; stopping
// cancels the timer and reports a change only if the session was typing.
func (t *TypingTracker) SetTyping(connectionID string, isTyping bool) (TypingChange, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions.Get(connectionID)
	if !ok {
		t.cancelLocked(connectionID)
		return TypingChange{}, false, ErrSessionNotFound
	}

	t.cancelLocked(connectionID)
	if isTyping {
		t.armLocked(connectionID)
	}

	prev, _ := t.sessions.SetTyping(connectionID, isTyping)
	if prev == isTyping {
		return TypingChange{}, false, nil
	}
	return TypingChange{
		ConnectionID: connectionID,
		Username:     session.Username,
		IsTyping:     isTyping,
	}, true, nil
}

// Expire handles a fired timer. It clears the typing flag only when generation
// is still the armed timer for connectionID and the session still exists.
func (t *TypingTracker) Expire(connectionID string, generation uint64) (TypingChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.timers[connectionID]
	if !ok || current.generation != generation {
		return TypingChange{}, false
	}
	delete(t.timers, connectionID)

	session, ok := t.sessions.Get(connectionID)
	if !ok {
		return TypingChange{}, false
	}
	prev, _ := t.sessions.SetTyping(connectionID, false)
	if !prev {
		return TypingChange{}, false
	}
	return TypingChange{
		ConnectionID: connectionID,
		Username:     session.Username,
		IsTyping:     false,
	}, true
}

// Cancel stops any pending timer for connectionID without touching the session.
func (t *TypingTracker) Cancel(connectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked(connectionID)
}

// Pending reports whether connectionID has an armed timer.
func (t *TypingTracker) Pending(connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[connectionID]
	return ok
}

// CancelAll stops every pending timer.
func (t *TypingTracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.timers {
		t.cancelLocked(id)
	}
}

func (t *TypingTracker) cancelLocked(connectionID string) {
	if timer, ok := t.timers[connectionID]; ok {
		timer.stop()
		delete(t.timers, connectionID)
	}
}

func (t *TypingTracker) armLocked(connectionID string) {
	t.generation++
	generation := t.generation
	stop := t.after(t.timeout, func() {
		t.fire(connectionID, generation)
	})
	t.timers[connectionID] = typingTimer{generation: generation, stop: stop}
}
