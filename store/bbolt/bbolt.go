// Package bbolt provides a BBolt-backed user store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/authgate/authgate/store"
)

var usersBucket = []byte("users")

// Store implements store.UserStore backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ store.UserStore = (*Store)(nil)

// NewStore returns a UserStore backed by the given BBolt database.
func NewStore(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewStoreFromFile opens a BBolt database at the given path and returns a
// new Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) HasUser(_ context.Context, username string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		if b == nil {
			return nil
		}
		found = b.Get([]byte(username)) != nil
		return nil
	})
	return found, err
}

func (s *Store) GetUser(_ context.Context, username string) (*store.User, error) {
	var user store.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		if b == nil {
			return fmt.Errorf("%s: %w", username, store.ErrNotFound)
		}
		data := b.Get([]byte(username))
		if data == nil {
			return fmt.Errorf("%s: %w", username, store.ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, username, passwordHash string, isAdmin bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(usersBucket)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		data, err := json.Marshal(store.User{
			Username:     username,
			PasswordHash: passwordHash,
			IsAdmin:      isAdmin,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		return b.Put([]byte(username), data)
	})
}

func (s *Store) UpdateUser(_ context.Context, username, passwordHash string, isAdmin bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		if b == nil {
			return fmt.Errorf("%s: %w", username, store.ErrNotFound)
		}
		data := b.Get([]byte(username))
		if data == nil {
			return fmt.Errorf("%s: %w", username, store.ErrNotFound)
		}
		var user store.User
		if err := json.Unmarshal(data, &user); err != nil {
			return err
		}
		user.PasswordHash = passwordHash
		user.IsAdmin = isAdmin
		user.UpdatedAt = time.Now().UTC()
		updated, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(username), updated)
	})
}
