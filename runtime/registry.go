// Package runtime owns the live-connection state of the process: which
// identity is connected and through which session. It contains no
// business rules; handlers receive it as an explicit dependency.
package runtime

import (
	"sync"

	"whisper/contract"

	"github.com/google/uuid"
)

// Registry is the process-wide map from identity to live session.
// Policy: one session per identity. Registering while a session already
// exists replaces it and closes the replaced sink, so a stale tab drops
// instead of silently going deaf.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*contract.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*contract.Session)}
}

// Register stores the session and returns the one it replaced, if any.
// The replaced session's sink is closed here so its write loop ends even
// if the old transport never notices the disconnect.
func (r *Registry) Register(s *contract.Session) *contract.Session {
	r.mu.Lock()
	replaced := r.sessions[s.UserID]
	r.sessions[s.UserID] = s
	r.mu.Unlock()

	if replaced != nil {
		replaced.Sink.Close()
	}
	return replaced
}

// Unregister removes the entry only if it still belongs to handle.
// A late disconnect from a replaced session must not evict the newer
// one, so the removal is conditional on handle identity.
func (r *Registry) Unregister(userID, handle uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current.Handle != handle {
		return false
	}
	delete(r.sessions, userID)
	return true
}

func (r *Registry) Lookup(userID uuid.UUID) (*contract.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Snapshot returns all live sessions; fan-out paths iterate the copy so
// no lock is held while sinks consume.
func (r *Registry) Snapshot() []*contract.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*contract.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
