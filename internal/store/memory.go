// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package store

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
	"github.com/permforge/permforge/internal/track"
)

// userRecord is the stored shape of a user. Nodes are copied on the way in
// and out so callers can't mutate stored state through a live holder.
type userRecord struct {
	username     string
	primaryGroup string
	nodes        []node.Node
}

// MemoryStore is an in-process Store for tests and standalone deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]userRecord
	groups map[string][]node.Node
	tracks map[string][]string
	names  map[string]uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[uuid.UUID]userRecord),
		groups: make(map[string][]node.Node),
		tracks: make(map[string][]string),
		names:  make(map[string]uuid.UUID),
	}
}

// LoadUser returns the stored user or ErrNotFound.
func (s *MemoryStore) LoadUser(_ context.Context, id uuid.UUID) (*holder.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("uuid", id.String()).Wrap(ErrNotFound)
	}
	u := holder.NewUser(id, rec.username)
	u.SetPrimaryGroup(rec.primaryGroup)
	u.SetNodes(copyNodes(rec.nodes))
	return u, nil
}

// SaveUser stores the user's enduring nodes, username and primary group.
func (s *MemoryStore) SaveUser(_ context.Context, u *holder.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UUID()] = userRecord{
		username:     u.Username(),
		primaryGroup: u.PrimaryGroup(),
		nodes:        copyNodes(u.EnduringNodes()),
	}
	if name := u.Username(); name != "" {
		s.names[strings.ToLower(name)] = u.UUID()
	}
	return nil
}

// LoadGroup returns the stored group or ErrNotFound.
func (s *MemoryStore) LoadGroup(_ context.Context, name string) (*holder.Group, error) {
	name = strings.ToLower(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.groups[name]
	if !ok {
		return nil, oops.Code("GROUP_NOT_FOUND").With("group", name).Wrap(ErrNotFound)
	}
	g := holder.NewGroup(name)
	g.SetNodes(copyNodes(ns))
	return g, nil
}

// CreateGroup makes a new empty group.
func (s *MemoryStore) CreateGroup(_ context.Context, name string) (*holder.Group, error) {
	name = strings.ToLower(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[name]; ok {
		return nil, oops.Code("GROUP_EXISTS").With("group", name).Wrap(ErrAlreadyExists)
	}
	s.groups[name] = nil
	return holder.NewGroup(name), nil
}

// SaveGroup stores the group's nodes, creating the group if needed.
func (s *MemoryStore) SaveGroup(_ context.Context, g *holder.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.Name()] = copyNodes(g.EnduringNodes())
	return nil
}

// DeleteGroup removes a group; ErrNotFound if it was never created.
func (s *MemoryStore) DeleteGroup(_ context.Context, name string) error {
	name = strings.ToLower(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[name]; !ok {
		return oops.Code("GROUP_NOT_FOUND").With("group", name).Wrap(ErrNotFound)
	}
	delete(s.groups, name)
	return nil
}

// LoadAllGroups returns every stored group.
func (s *MemoryStore) LoadAllGroups(_ context.Context) ([]*holder.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*holder.Group, 0, len(s.groups))
	for name, ns := range s.groups {
		g := holder.NewGroup(name)
		g.SetNodes(copyNodes(ns))
		out = append(out, g)
	}
	return out, nil
}

// LoadTrack returns the stored track or ErrNotFound.
func (s *MemoryStore) LoadTrack(_ context.Context, name string) (*track.Track, error) {
	name = strings.ToLower(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups, ok := s.tracks[name]
	if !ok {
		return nil, oops.Code("TRACK_NOT_FOUND").With("track", name).Wrap(ErrNotFound)
	}
	return track.New(name, groups...)
}

// CreateTrack makes a new empty track.
func (s *MemoryStore) CreateTrack(_ context.Context, name string) (*track.Track, error) {
	name = strings.ToLower(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[name]; ok {
		return nil, oops.Code("TRACK_EXISTS").With("track", name).Wrap(ErrAlreadyExists)
	}
	s.tracks[name] = nil
	return track.New(name)
}

// SaveTrack stores the track's group list.
func (s *MemoryStore) SaveTrack(_ context.Context, t *track.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[t.Name()] = t.Groups()
	return nil
}

// DeleteTrack removes a track; ErrNotFound if it was never created.
func (s *MemoryStore) DeleteTrack(_ context.Context, name string) error {
	name = strings.ToLower(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[name]; !ok {
		return oops.Code("TRACK_NOT_FOUND").With("track", name).Wrap(ErrNotFound)
	}
	delete(s.tracks, name)
	return nil
}

// LoadAllTracks returns every stored track.
func (s *MemoryStore) LoadAllTracks(_ context.Context) ([]*track.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*track.Track, 0, len(s.tracks))
	for name, groups := range s.tracks {
		t, err := track.New(name, groups...)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// SavePlayerName records the uuid/username pairing.
func (s *MemoryStore) SavePlayerName(_ context.Context, id uuid.UUID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[strings.ToLower(username)] = id
	if rec, ok := s.users[id]; ok {
		rec.username = username
		s.users[id] = rec
	}
	return nil
}

// LookupUUID resolves a username to a UUID, case-insensitively.
func (s *MemoryStore) LookupUUID(_ context.Context, username string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.names[strings.ToLower(username)]
	if !ok {
		return uuid.Nil, oops.Code("PLAYER_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
	}
	return id, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func copyNodes(ns []node.Node) []node.Node {
	if len(ns) == 0 {
		return nil
	}
	out := make([]node.Node, len(ns))
	copy(out, ns)
	return out
}

var _ Store = (*MemoryStore)(nil)
