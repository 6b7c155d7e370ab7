// Package memory provides a thread-safe in-memory implementation of
// store.UserStore. Suitable for testing, demos, and single-process use.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/authgate/authgate/store"
)

// Store is a thread-safe in-memory implementation of store.UserStore.
type Store struct {
	mu    sync.RWMutex
	users map[string]store.User
}

var _ store.UserStore = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{users: make(map[string]store.User)}
}

func (s *Store) HasUser(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok, nil
}

func (s *Store) GetUser(_ context.Context, username string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, username, passwordHash string, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.users[username] = store.User{
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return nil
}

func (s *Store) UpdateUser(_ context.Context, username, passwordHash string, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.IsAdmin = isAdmin
	u.UpdatedAt = time.Now().UTC()
	s.users[username] = u
	return nil
}
