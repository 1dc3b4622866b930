package gateway

import (
	"sync"
	"time"
)

// SessionInfo is a point-in-time view of one session for the control API.
type SessionInfo struct {
	ClientID     string    `json:"clientId"`
	SessionLabel string    `json:"sessionLabel,omitempty"`
	InspectionID string    `json:"inspectionId,omitempty"`
	LiveMode     bool      `json:"liveMode"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Registry tracks connected sessions by client ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session, replacing any previous session with the same
// client ID.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ClientID] = s
}

// Remove drops a session by client ID.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
}

// Get returns the session for a client ID.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[clientID]
	return s, ok
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a view of all connected sessions.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, SessionInfo{
			ClientID:     s.ClientID,
			SessionLabel: s.Label(),
			InspectionID: s.Inspection(),
			LiveMode:     s.Live() != nil,
			JoinedAt:     s.JoinedAt,
		})
	}
	return infos
}
