package memory

import (
	"context"
	"sync"

	"qrquest/internal/domain"
)

// SessionStore is an in-memory implementation of app.StateStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Conversation
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Conversation),
	}
}

func (s *SessionStore) Get(_ context.Context, identity string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[identity], nil
}

func (s *SessionStore) Set(_ context.Context, identity string, conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.State == domain.ConversationNone {
		delete(s.sessions, identity)
		return nil
	}
	s.sessions[identity] = conv
	return nil
}

func (s *SessionStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identity)
	return nil
}
