package typing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LocalStore keeps expiry deadlines in memory and prunes them on access,
// so nothing is scheduled and nothing leaks on shutdown.
type LocalStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	typing map[string]map[string]time.Time // conversationID -> userID -> expiry
}

func NewLocalStore(ttl time.Duration, now func() time.Time) *LocalStore {
	if now == nil {
		now = time.Now
	}
	return &LocalStore{
		ttl:    ttl,
		now:    now,
		typing: make(map[string]map[string]time.Time),
	}
}

func (s *LocalStore) Start(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.typing[conversationID]
	if users == nil {
		users = make(map[string]time.Time)
		s.typing[conversationID] = users
	}
	users[userID] = s.now().Add(s.ttl)
	return nil
}

func (s *LocalStore) Stop(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if users, ok := s.typing[conversationID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.typing, conversationID)
		}
	}
	return nil
}

func (s *LocalStore) List(_ context.Context, conversationID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.typing[conversationID]
	now := s.now()
	out := make([]string, 0, len(users))
	for u, expiry := range users {
		if !now.Before(expiry) {
			delete(users, u)
			continue
		}
		out = append(out, u)
	}
	if users != nil && len(users) == 0 {
		delete(s.typing, conversationID)
	}
	sort.Strings(out)
	return out, nil
}
