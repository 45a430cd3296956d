// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package holder

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultGroupName is the fallback primary group for users with none stored.
const DefaultGroupName = "default"

// User is a permission holder identified by UUID, typically a player.
type User struct {
	base

	id uuid.UUID

	mu           sync.RWMutex
	username     string
	primaryGroup string
}

// NewUser creates a user with the given identity. Username may be empty when
// the player has never been seen by name.
func NewUser(id uuid.UUID, username string) *User {
	return &User{id: id, username: username}
}

// UUID returns the user's identity.
func (u *User) UUID() uuid.UUID { return u.id }

// Identifier implements Holder.
func (u *User) Identifier() string { return u.id.String() }

// FriendlyName returns the username, falling back to the UUID string.
func (u *User) FriendlyName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.username != "" {
		return u.username
	}
	return u.id.String()
}

// Username returns the last known player name, possibly empty.
func (u *User) Username() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.username
}

// SetUsername records the player's current name.
func (u *User) SetUsername(name string) {
	u.mu.Lock()
	u.username = name
	u.mu.Unlock()
}

// PrimaryGroup returns the stored primary group, or DefaultGroupName when
// none is stored.
func (u *User) PrimaryGroup() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.primaryGroup == "" {
		return DefaultGroupName
	}
	return u.primaryGroup
}

// StoredPrimaryGroup returns the raw stored value, possibly empty.
func (u *User) StoredPrimaryGroup() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.primaryGroup
}

// SetPrimaryGroup updates the primary group pointer. It does not touch the
// node collections; membership nodes are managed separately.
func (u *User) SetPrimaryGroup(group string) {
	u.mu.Lock()
	u.primaryGroup = group
	u.mu.Unlock()
}

var _ Holder = (*User)(nil)
