package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/authgate/authgate/store"
)

// Synchronizer upserts resolved identities into the user store, making
// authorization state directory-driven: every successful authentication
// refreshes the local mirror, so role changes in the directory propagate
// on the next login without manual intervention.
type Synchronizer struct {
	store  store.UserStore
	logger *slog.Logger
}

// NewSynchronizer returns a Synchronizer writing to st. A nil logger
// disables sync logging.
func NewSynchronizer(st store.UserStore, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synchronizer{store: st, logger: logger.With("component", "sync")}
}

// Sync creates or updates the user record for an authenticated identity.
// Unauthenticated identities are a no-op. The stored credential is a
// placeholder only — the directory is authoritative for passwords.
func (s *Synchronizer) Sync(ctx context.Context, id Identity) error {
	if !id.Authenticated() {
		return nil
	}

	hash, err := placeholderHash()
	if err != nil {
		return fmt.Errorf("generating placeholder credential: %w", err)
	}

	exists, err := s.store.HasUser(ctx, id.Name)
	if err != nil {
		return fmt.Errorf("looking up user %q: %w", id.Name, err)
	}
	if exists {
		if err := s.store.UpdateUser(ctx, id.Name, hash, id.IsAdmin); err != nil {
			return fmt.Errorf("updating user %q: %w", id.Name, err)
		}
	} else {
		if err := s.store.CreateUser(ctx, id.Name, hash, id.IsAdmin); err != nil {
			return fmt.Errorf("creating user %q: %w", id.Name, err)
		}
	}

	s.logger.InfoContext(ctx, "user record synced",
		"user", id.Name, "admin", id.IsAdmin, "created", !exists)
	return nil
}

// placeholderHash returns a bcrypt hash of random bytes. MinCost is
// deliberate: the value exists only so the record has a credential column
// that can never match a real password, and it is regenerated on every
// login.
func placeholderHash() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword(b, bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
