// Package memory provides in-process adapters used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
	apperrors "github.com/skoruppa/NuvioTV-sub003/internal/errors"
)

// ErrNotFound is returned when no session is stored under a key.
var ErrNotFound = apperrors.NotFound("session not found")

// SessionStore keeps provider sessions in a map. Contents are lost on restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domainauth.Session
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domainauth.Session)}
}

func (s *SessionStore) Save(_ context.Context, key string, sess domainauth.Session) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("session key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = sess
	return nil
}

func (s *SessionStore) Get(_ context.Context, key string) (domainauth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *SessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
