// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package holder

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// UserManager is the in-memory registry of loaded users. Users are loaded on
// demand from storage and unloaded when no longer referenced; the manager has
// no storage dependency of its own, it is plain shared state passed to the
// engine by reference.
type UserManager struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

// NewUserManager creates an empty registry.
func NewUserManager() *UserManager {
	return &UserManager{users: make(map[uuid.UUID]*User)}
}

// GetOrMake returns the loaded user, creating and registering an empty one
// when absent. The bool reports whether the user was already loaded.
func (m *UserManager) GetOrMake(id uuid.UUID) (*User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, true
	}
	u := NewUser(id, "")
	m.users[id] = u
	return u, false
}

// IfLoaded returns the user when present, nil otherwise.
func (m *UserManager) IfLoaded(id uuid.UUID) *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[id]
}

// Unload drops the user from the registry.
func (m *UserManager) Unload(id uuid.UUID) {
	m.mu.Lock()
	delete(m.users, id)
	m.mu.Unlock()
}

// All returns a snapshot of the loaded users.
func (m *UserManager) All() []*User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out
}

// GroupManager is the in-memory registry of loaded groups. Unlike users,
// groups stay loaded until explicitly deleted.
type GroupManager struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

// NewGroupManager creates an empty registry.
func NewGroupManager() *GroupManager {
	return &GroupManager{groups: make(map[string]*Group)}
}

// GetOrMake returns the loaded group, creating and registering an empty one
// when absent. The bool reports whether the group was already loaded.
func (m *GroupManager) GetOrMake(name string) (*Group, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[name]; ok {
		return g, true
	}
	g := NewGroup(name)
	m.groups[name] = g
	return g, false
}

// IfLoaded returns the group when present, nil otherwise.
func (m *GroupManager) IfLoaded(name string) *Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groups[strings.ToLower(strings.TrimSpace(name))]
}

// Unload drops the group from the registry (group deletion path).
func (m *GroupManager) Unload(name string) {
	m.mu.Lock()
	delete(m.groups, strings.ToLower(strings.TrimSpace(name)))
	m.mu.Unlock()
}

// All returns a snapshot of the loaded groups.
func (m *GroupManager) All() []*Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out
}
