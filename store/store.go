// Package store provides the user-record store abstraction backing
// authgate's directory-driven authorization mirror. Backends implement
// UserStore; the memory, bbolt, postgres and redis subpackages provide
// implementations.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the referenced user record does not exist.
var ErrNotFound = errors.New("user not found")

// User is a local mirror of a directory identity. The password hash is a
// placeholder — the directory, not the local store, is authoritative for
// credentials — while the admin flag is refreshed on every successful
// authentication.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserStore defines the interface for user-record persistence.
type UserStore interface {
	HasUser(ctx context.Context, username string) (bool, error)
	GetUser(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error
	UpdateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error
}
