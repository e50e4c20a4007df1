// Package client logs in to a gatekeep server from a program instead of a
// browser. It keeps the session token the server hands out, per server, and
// attaches it to later HTTP and gRPC calls.
package client

import (
	"sync"
	"time"
)

// ServerSession is what the client remembers about one server.
type ServerSession struct {
	Token     string    `json:"token"`
	UserEmail string    `json:"user_email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the cookie lifetime has passed. A zero
// ExpiresAt (a browser-session cookie) never expires on the client.
func (s *ServerSession) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// SessionStore persists sessions keyed by server URL.
type SessionStore interface {
	// GetSession returns nil, nil if there is no session for serverURL
	GetSession(serverURL string) (*ServerSession, error)

	SetSession(serverURL string, sess *ServerSession) error

	RemoveSession(serverURL string) error

	// ListServers returns all server URLs with stored sessions
	ListServers() ([]string, error)

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}

// MemorySessionStore keeps sessions for the life of the process.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*ServerSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]*ServerSession{}}
}

func (m *MemorySessionStore) GetSession(serverURL string) (*ServerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[serverURL], nil
}

func (m *MemorySessionStore) SetSession(serverURL string, sess *ServerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[serverURL] = sess
	return nil
}

func (m *MemorySessionStore) RemoveSession(serverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, serverURL)
	return nil
}

func (m *MemorySessionStore) ListServers() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemorySessionStore) Save() error { return nil }
