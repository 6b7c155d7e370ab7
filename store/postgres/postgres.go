// Package postgres implements store.UserStore backed by PostgreSQL.
//
// The users table keys records on the username. Timestamps are stored as
// TIMESTAMPTZ and returned in UTC.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authgate/authgate/store"
)

// Store implements store.UserStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.UserStore = (*Store)(nil)

// NewStore returns a UserStore backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures the
// schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) HasUser(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`,
		username).Scan(&exists)
	return exists, err
}

func (s *Store) GetUser(ctx context.Context, username string) (*store.User, error) {
	var user store.User
	err := s.pool.QueryRow(ctx,
		`SELECT username, password_hash, is_admin, created_at, updated_at
		 FROM users WHERE username = $1`,
		username).Scan(
		&user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", username, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (username)
		 DO UPDATE SET password_hash = $2, is_admin = $3, updated_at = $4`,
		username, passwordHash, isAdmin, now)
	return err
}

func (s *Store) UpdateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, is_admin = $3, updated_at = $4
		 WHERE username = $1`,
		username, passwordHash, isAdmin, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", username, store.ErrNotFound)
	}
	return nil
}
