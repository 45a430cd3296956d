// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package holder

import "strings"

// Group is a permission holder identified by name. Users inherit a group's
// nodes by owning a "group.<name>" membership node.
type Group struct {
	base

	name string
}

// NewGroup creates a group. Names are case-folded; they double as the value
// part of membership node keys.
func NewGroup(name string) *Group {
	return &Group{name: strings.ToLower(strings.TrimSpace(name))}
}

// Name returns the group's identity.
func (g *Group) Name() string { return g.name }

// Identifier implements Holder.
func (g *Group) Identifier() string { return g.name }

// FriendlyName implements Holder.
func (g *Group) FriendlyName() string { return g.name }

var _ Holder = (*Group)(nil)
