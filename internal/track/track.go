// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package track defines promotion tracks: ordered, duplicate-free sequences
// of group names a user moves along when promoted or demoted.
package track

import (
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Track is a named, ordered sequence of group names. Mutations preserve the
// no-duplicates invariant; reads return snapshots.
type Track struct {
	name string

	mu     sync.RWMutex
	groups []string
}

// New creates a track. Group names are case-folded; duplicates are rejected.
func New(name string, groups ...string) (*Track, error) {
	t := &Track{name: strings.ToLower(strings.TrimSpace(name))}
	if t.name == "" {
		return nil, oops.In("track").
			Code("INVALID_TRACK").
			New("track name must not be empty")
	}
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			return nil, oops.In("track").
				Code("DUPLICATE_GROUP").
				With("track", t.name).
				With("group", g).
				Wrap(ErrDuplicateGroup)
		}
		seen[g] = struct{}{}
		t.groups = append(t.groups, g)
	}
	return t, nil
}

// Name returns the track's identity.
func (t *Track) Name() string { return t.name }

// Groups returns a copy of the ordered group list.
func (t *Track) Groups() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.groups))
	copy(out, t.groups)
	return out
}

// Size returns the number of groups on the track.
func (t *Track) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.groups)
}

// Contains reports whether the group is listed on the track.
func (t *Track) Contains(group string) bool {
	group = strings.ToLower(strings.TrimSpace(group))
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.indexOf(group) >= 0
}

// Next returns the group after current, or "" when current is the last
// entry. Fails with ErrGroupNotOnTrack when current is not listed at all.
func (t *Track) Next(current string) (string, error) {
	current = strings.ToLower(strings.TrimSpace(current))
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexOf(current)
	if i < 0 {
		return "", t.notOnTrack(current)
	}
	if i == len(t.groups)-1 {
		return "", nil
	}
	return t.groups[i+1], nil
}

// Previous returns the group before current, or "" when current is the first
// entry. Fails with ErrGroupNotOnTrack when current is not listed at all.
func (t *Track) Previous(current string) (string, error) {
	current = strings.ToLower(strings.TrimSpace(current))
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexOf(current)
	if i < 0 {
		return "", t.notOnTrack(current)
	}
	if i == 0 {
		return "", nil
	}
	return t.groups[i-1], nil
}

// Append adds a group at the end of the track.
func (t *Track) Append(group string) error {
	return t.Insert(group, -1)
}

// Insert adds a group at the given position; a negative or out-of-range
// position appends. Duplicates are rejected.
func (t *Track) Insert(group string, position int) error {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" {
		return oops.In("track").
			Code("INVALID_TRACK").
			With("track", t.name).
			New("group name must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexOf(group) >= 0 {
		return oops.In("track").
			Code("DUPLICATE_GROUP").
			With("track", t.name).
			With("group", group).
			Wrap(ErrDuplicateGroup)
	}
	if position < 0 || position >= len(t.groups) {
		t.groups = append(t.groups, group)
		return nil
	}
	t.groups = append(t.groups[:position], append([]string{group}, t.groups[position:]...)...)
	return nil
}

// Remove drops a group from the track.
func (t *Track) Remove(group string) error {
	group = strings.ToLower(strings.TrimSpace(group))
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(group)
	if i < 0 {
		return t.notOnTrack(group)
	}
	t.groups = append(t.groups[:i], t.groups[i+1:]...)
	return nil
}

// Clear empties the track and returns the previous group list.
func (t *Track) Clear() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.groups
	t.groups = nil
	return old
}

// indexOf requires t.mu held.
func (t *Track) indexOf(group string) int {
	for i, g := range t.groups {
		if g == group {
			return i
		}
	}
	return -1
}

func (t *Track) notOnTrack(group string) error {
	return oops.In("track").
		Code("GROUP_NOT_ON_TRACK").
		With("track", t.name).
		With("group", group).
		Wrap(ErrGroupNotOnTrack)
}

// Manager is the in-memory registry of loaded tracks, mirroring the group
// registry: tracks stay loaded until deleted.
type Manager struct {
	mu     sync.RWMutex
	tracks map[string]*Track
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{tracks: make(map[string]*Track)}
}

// Register stores a loaded track, replacing any previous instance.
func (m *Manager) Register(t *Track) {
	m.mu.Lock()
	m.tracks[t.Name()] = t
	m.mu.Unlock()
}

// IfLoaded returns the track when present, nil otherwise.
func (m *Manager) IfLoaded(name string) *Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracks[strings.ToLower(strings.TrimSpace(name))]
}

// Unload drops the track from the registry (deletion path).
func (m *Manager) Unload(name string) {
	m.mu.Lock()
	delete(m.tracks, strings.ToLower(strings.TrimSpace(name)))
	m.mu.Unlock()
}

// All returns a snapshot of the loaded tracks.
func (m *Manager) All() []*Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out
}
