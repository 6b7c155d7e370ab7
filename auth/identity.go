// Package auth defines the resolved identity value type and the user
// record synchronizer that mirrors directory-resolved roles into the
// local user store.
package auth

// Identity is the outcome of resolving a set of credentials against the
// directory. It is an immutable value: role changes produce a new
// Identity, never an in-place mutation.
type Identity struct {
	Name    string
	IsUser  bool
	IsAdmin bool
}

// Authenticated reports whether the identity carries any authorized role.
func (id Identity) Authenticated() bool {
	return id.IsAdmin || id.IsUser
}
