// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package node defines the immutable permission node: a single grant or
// denial of a permission key, scoped by a context set, optional server/world
// restrictions, and an optional expiry.
package node

import (
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/permforge/permforge/internal/contexts"
)

// GroupPrefix is the permission key prefix that grants group membership.
// A node "group.admin"=true makes the holder inherit from the "admin" group.
const GroupPrefix = "group."

// WildcardSuffix marks a node key as matching every sub-permission of its
// root ("a.b.*" matches "a.b.c", "a.b.c.d", ...).
const WildcardSuffix = ".*"

// Node is an immutable permission grant. Construct with a Builder; the zero
// value is invalid. Nodes are small and passed by value.
type Node struct {
	key     string
	value   bool
	context contexts.ImmutableContextSet
	expiry  time.Time // zero means permanent
	server  string    // empty means unrestricted
	world   string    // empty means unrestricted
}

// Key returns the permission key, lower-cased.
func (n Node) Key() string { return n.key }

// Value reports whether the node grants (true) or denies (false) the key.
func (n Node) Value() bool { return n.value }

// Context returns the node's context constraints.
func (n Node) Context() contexts.ImmutableContextSet { return n.context }

// Server returns the server restriction, or "" when unrestricted.
func (n Node) Server() string { return n.server }

// World returns the world restriction, or "" when unrestricted.
func (n Node) World() string { return n.world }

// Expiry returns the expiry instant and whether one is set.
func (n Node) Expiry() (time.Time, bool) {
	return n.expiry, !n.expiry.IsZero()
}

// IsTemporary reports whether the node carries an expiry.
func (n Node) IsTemporary() bool { return !n.expiry.IsZero() }

// HasExpired reports whether the node's expiry has passed at the given
// instant. Permanent nodes never expire. A node whose expiry equals the
// instant is expired: expiry must be strictly in the future to apply.
func (n Node) HasExpired(at time.Time) bool {
	return !n.expiry.IsZero() && !n.expiry.After(at)
}

// IsGroupNode reports whether the node grants group membership.
func (n Node) IsGroupNode() bool {
	return strings.HasPrefix(n.key, GroupPrefix) && len(n.key) > len(GroupPrefix)
}

// GroupName returns the group this node grants membership in, or "" when the
// node is not a group node.
func (n Node) GroupName() string {
	if !n.IsGroupNode() {
		return ""
	}
	return n.key[len(GroupPrefix):]
}

// IsWildcard reports whether the key ends in the wildcard suffix.
func (n Node) IsWildcard() bool {
	return strings.HasSuffix(n.key, WildcardSuffix) && len(n.key) > len(WildcardSuffix)
}

// WildcardRoot returns the key without its trailing ".*", or "" when the node
// is not a wildcard.
func (n Node) WildcardRoot() string {
	if !n.IsWildcard() {
		return ""
	}
	return n.key[:len(n.key)-len(WildcardSuffix)]
}

// Applicable reports whether the node applies to a permission query made in
// the given context at the given instant: its context constraints are
// satisfied, it has not expired, and any server/world restriction matches the
// query's corresponding context entry.
func (n Node) Applicable(query contexts.ImmutableContextSet, at time.Time) bool {
	if n.HasExpired(at) {
		return false
	}
	if n.server != "" && n.server != query.AnyValue(contexts.KeyServer) {
		return false
	}
	if n.world != "" && n.world != query.AnyValue(contexts.KeyWorld) {
		return false
	}
	return n.context.SatisfiedBy(query)
}

// Equals reports node equivalence: same key, context, server, and world.
// Value and expiry are excluded, so a write path can locate the node it must
// replace. A holder never keeps two enduring Equals-equal nodes.
func (n Node) Equals(other Node) bool {
	return n.key == other.key &&
		n.server == other.server &&
		n.world == other.world &&
		n.context.Equal(other.context)
}

// EqualsExact reports full equality including value and expiry.
func (n Node) EqualsExact(other Node) bool {
	return n.Equals(other) && n.value == other.value && n.expiry.Equal(other.expiry)
}

// String renders the node for logs: "key=true (server=x world=y ctx)".
func (n Node) String() string {
	var b strings.Builder
	b.WriteString(n.key)
	if !n.value {
		b.WriteString("=false")
	}
	var scope []string
	if n.server != "" {
		scope = append(scope, "server="+n.server)
	}
	if n.world != "" {
		scope = append(scope, "world="+n.world)
	}
	if !n.context.IsEmpty() {
		scope = append(scope, n.context.Key())
	}
	if len(scope) > 0 {
		b.WriteString(" (" + strings.Join(scope, " ") + ")")
	}
	return b.String()
}

// Builder assembles a Node. Builders are single-use value types; each setter
// returns the updated builder.
type Builder struct {
	n Node
}

// NewBuilder starts a builder for a grant of key (value defaults to true).
func NewBuilder(key string) Builder {
	return Builder{n: Node{
		key:   strings.ToLower(strings.TrimSpace(key)),
		value: true,
	}}
}

// NewGroupNode starts a builder granting membership in the named group.
func NewGroupNode(group string) Builder {
	return NewBuilder(GroupPrefix + group)
}

// Value sets the grant (true) or denial (false) value.
func (b Builder) Value(v bool) Builder {
	b.n.value = v
	return b
}

// WithContext replaces the node's context constraints.
func (b Builder) WithContext(set contexts.ImmutableContextSet) Builder {
	b.n.context = set
	return b
}

// Server restricts the node to a server.
func (b Builder) Server(server string) Builder {
	b.n.server = strings.ToLower(strings.TrimSpace(server))
	return b
}

// World restricts the node to a world.
func (b Builder) World(world string) Builder {
	b.n.world = strings.ToLower(strings.TrimSpace(world))
	return b
}

// ExpiresAt sets the expiry instant. A zero time clears it.
func (b Builder) ExpiresAt(t time.Time) Builder {
	b.n.expiry = t
	return b
}

// Build validates and returns the node.
func (b Builder) Build() (Node, error) {
	if b.n.key == "" {
		return Node{}, oops.In("node").
			Code("INVALID_NODE").
			New("permission key must not be empty")
	}
	return b.n, nil
}

// MustBuild is Build for statically known-good keys; it panics on error.
func (b Builder) MustBuild() Node {
	n, err := b.Build()
	if err != nil {
		panic("node.MustBuild: " + err.Error())
	}
	return n
}
