package mcp

import (
	"slices"
	"sync"
)

// SessionRegistry maps MCP session IDs to the hub topics they watch.
// Populated by nexus.watch.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string][]string // sessionID → topics
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string][]string)}
}

// Watch replaces the topics watched by a session.
func (r *SessionRegistry) Watch(sessionID string, topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = slices.Clone(topics)
}

// Topics returns the topics a session watches.
func (r *SessionRegistry) Topics(sessionID string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics, ok := r.sessions[sessionID]
	return slices.Clone(topics), ok
}

// Watchers returns the sessions watching topic, sorted.
func (r *SessionRegistry) Watchers(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for sid, topics := range r.sessions {
		if slices.Contains(topics, topic) {
			out = append(out, sid)
		}
	}
	slices.Sort(out)
	return out
}

// Remove forgets a session. Called when it stops watching or disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}
