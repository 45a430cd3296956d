// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package engine

import (
	"github.com/google/uuid"

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
)

// Subject is the check surface for one loaded holder. Lookups answer from
// the context-scoped cache; building one is cheap.
type Subject struct {
	h            holder.Holder
	engine       *Engine
	defaultValue bool
}

// Subject returns the check surface for a loaded user.
func (e *Engine) Subject(id uuid.UUID) (*Subject, error) {
	u := e.users.IfLoaded(id)
	if u == nil {
		return nil, notLoaded("user", id.String())
	}
	return &Subject{h: u, engine: e, defaultValue: e.defaultValue}, nil
}

// GroupSubject returns the check surface for a loaded group.
func (e *Engine) GroupSubject(name string) (*Subject, error) {
	g := e.groups.IfLoaded(name)
	if g == nil {
		return nil, notLoaded("group", name)
	}
	return &Subject{h: g, engine: e, defaultValue: e.defaultValue}, nil
}

// PermissionCheck returns the resolved tristate for a permission in the
// given context: True or False when some applicable node decides it,
// Undefined when none does.
func (s *Subject) PermissionCheck(key string, query contexts.ImmutableContextSet) node.Tristate {
	return s.engine.cache.PermissionValue(s.h, query, key)
}

// HasPermission answers a boolean check, applying the engine's configured
// fallback when no node decides the key.
func (s *Subject) HasPermission(key string, query contexts.ImmutableContextSet) bool {
	return s.PermissionCheck(key, query).AsBool(s.defaultValue)
}

// IsPermissionSet reports whether any applicable node decides the key,
// without revealing the value.
func (s *Subject) IsPermissionSet(key string, query contexts.ImmutableContextSet) bool {
	return s.PermissionCheck(key, query).IsSet()
}

// EffectivePermissions dumps every key the holder resolves in the given
// context, after inheritance flattening and wildcard-free exact keys only.
func (s *Subject) EffectivePermissions(query contexts.ImmutableContextSet) map[string]bool {
	return s.engine.cache.Get(s.h, query).Effective()
}
