// Package redis implements store.UserStore backed by Redis. Each user is
// a hash at user:<username>; timestamps are stored as RFC 3339 strings.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate/store"
)

// Store implements store.UserStore backed by Redis.
type Store struct {
	rdb *redis.Client
}

var _ store.UserStore = (*Store)(nil)

// NewStore returns a UserStore backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// NewStoreFromAddr connects to a Redis server, verifies the connection,
// and returns a new Store.
func NewStoreFromAddr(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(rdb), nil
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func userKey(username string) string {
	return "user:" + username
}

func (s *Store) HasUser(ctx context.Context, username string) (bool, error) {
	n, err := s.rdb.Exists(ctx, userKey(username)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*store.User, error) {
	fields, err := s.rdb.HGetAll(ctx, userKey(username)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", username, store.ErrNotFound)
	}
	isAdmin, _ := strconv.ParseBool(fields["is_admin"])
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])
	return &store.User{
		Username:     fields["username"],
		PasswordHash: fields["password_hash"],
		IsAdmin:      isAdmin,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.rdb.HSet(ctx, userKey(username), map[string]any{
		"username":      username,
		"password_hash": passwordHash,
		"is_admin":      strconv.FormatBool(isAdmin),
		"created_at":    now,
		"updated_at":    now,
	}).Err()
}

func (s *Store) UpdateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	key := userKey(username)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", username, store.ErrNotFound)
	}
	return s.rdb.HSet(ctx, key, map[string]any{
		"password_hash": passwordHash,
		"is_admin":      strconv.FormatBool(isAdmin),
		"updated_at":    time.Now().UTC().Format(time.RFC3339Nano),
	}).Err()
}
