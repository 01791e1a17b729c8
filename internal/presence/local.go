package presence

import (
	"context"
	"sync"
)

type LocalStore struct {
	mu      sync.RWMutex
	users   map[string]string // userID -> connID
	sockets map[string]string // connID -> userID
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		users:   make(map[string]string),
		sockets: make(map[string]string),
	}
}

func (s *LocalStore) SetOnline(_ context.Context, userID, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = connID
	s.sockets[connID] = userID
	return nil
}

func (s *LocalStore) SetOffline(_ context.Context, userID, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users[userID] == connID {
		delete(s.users, userID)
	}
	delete(s.sockets, connID)
	return nil
}

func (s *LocalStore) Connection(_ context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connID, ok := s.users[userID]
	return connID, ok, nil
}

func (s *LocalStore) User(_ context.Context, connID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.sockets[connID]
	return userID, ok, nil
}

func (s *LocalStore) Online(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.users))
	for u, c := range s.users {
		out[u] = c
	}
	return out, nil
}
