// Package fs keeps client sessions in a JSON file.
package fs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/panyam/gatekeep/client"
)

// FSSessionStore keeps one JSON file with a session per server.
type FSSessionStore struct {
	mu       sync.RWMutex
	path     string
	servers  map[string]*client.ServerSession
	modified bool
}

type sessionFile struct {
	Servers map[string]*client.ServerSession `json:"servers"`
}

// NewFSSessionStore opens the store at path, reading it if it exists. If
// path is empty it is ~/.config/<appName>/sessions.json.
func NewFSSessionStore(path string, appName string) (*FSSessionStore, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "gatekeep"
		}
		path = filepath.Join(configDir, appName, "sessions.json")
	}

	store := &FSSessionStore{
		path:    path,
		servers: make(map[string]*client.ServerSession),
	}
	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return store, nil
}

func (s *FSSessionStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse sessions file: %w", err)
	}
	if file.Servers != nil {
		s.servers = file.Servers
	}
	return nil
}

// normalizeURL reduces a server URL to scheme://host.
func normalizeURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

func (s *FSSessionStore) GetSession(serverURL string) (*client.ServerSession, error) {
	key, err := normalizeURL(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servers[key], nil
}

func (s *FSSessionStore) SetSession(serverURL string, sess *client.ServerSession) error {
	key, err := normalizeURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[key] = sess
	s.modified = true
	return nil
}

func (s *FSSessionStore) RemoveSession(serverURL string) error {
	key, err := normalizeURL(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, key)
	s.modified = true
	return nil
}

func (s *FSSessionStore) ListServers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]string, 0, len(s.servers))
	for k := range s.servers {
		servers = append(servers, k)
	}
	return servers, nil
}

// Save writes the file if anything changed. The file holds live session
// tokens so it is only readable by the owner.
func (s *FSSessionStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.modified {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(sessionFile{Servers: s.servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize sessions: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	s.modified = false
	return nil
}

// Path returns the path to the sessions file
func (s *FSSessionStore) Path() string {
	return s.path
}
