// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package holder defines the two permission-holding entities, User and
// Group, and their in-memory registries.
//
// A holder owns two node collections: enduring nodes, which are persisted,
// and transient nodes, which live only for the session. Both collections are
// copy-on-write so permission checks can iterate a stable snapshot while a
// concurrent mutation swaps in a new one.
package holder

import (
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/permforge/permforge/internal/node"
)

// ErrNodeNotFound is returned when unsetting a node the holder does not own.
var ErrNodeNotFound = errors.New("node not found")

// Holder is the capability shared by User and Group: an identity plus owned
// permission nodes. The two concrete types are distinguished with a type
// switch where it matters, not through further interface layers.
type Holder interface {
	// Identifier returns the stable identity: the UUID string for a user,
	// the name for a group.
	Identifier() string

	// FriendlyName returns a human-readable name for messages and logs.
	FriendlyName() string

	// Nodes returns a snapshot of all owned nodes, enduring first, each
	// collection in insertion order. Callers must not mutate the slice.
	Nodes() []node.Node

	// EnduringNodes returns a snapshot of the persisted nodes only.
	EnduringNodes() []node.Node

	// TransientNodes returns a snapshot of the session-only nodes.
	TransientNodes() []node.Node

	// SetNode adds an enduring node, replacing any equivalent one. It
	// reports whether an equivalent node was replaced.
	SetNode(n node.Node) bool

	// SetTransientNode adds a session-only node, replacing any equivalent one.
	SetTransientNode(n node.Node) bool

	// UnsetNode removes the enduring node equivalent to n.
	UnsetNode(n node.Node) error

	// UnsetTransientNode removes the transient node equivalent to n.
	UnsetTransientNode(n node.Node) error

	// ClearNodes drops all enduring nodes and returns the dropped snapshot.
	ClearNodes() []node.Node

	// SetNodes replaces the enduring collection wholesale (storage load path).
	SetNodes(ns []node.Node)

	// AuditTemporaryNodes removes expired enduring nodes and returns them.
	AuditTemporaryNodes(at time.Time) []node.Node
}

// base carries the node collections shared by User and Group.
type base struct {
	enduring  nodeList
	transient nodeList
}

func (b *base) Nodes() []node.Node {
	en := b.enduring.snapshot()
	tr := b.transient.snapshot()
	if len(tr) == 0 {
		return en
	}
	out := make([]node.Node, 0, len(en)+len(tr))
	out = append(out, en...)
	out = append(out, tr...)
	return out
}

func (b *base) EnduringNodes() []node.Node  { return b.enduring.snapshot() }
func (b *base) TransientNodes() []node.Node { return b.transient.snapshot() }

func (b *base) SetNode(n node.Node) bool          { return b.enduring.set(n) }
func (b *base) SetTransientNode(n node.Node) bool { return b.transient.set(n) }

func (b *base) UnsetNode(n node.Node) error {
	if !b.enduring.remove(n) {
		return oops.In("holder").
			Code("NODE_NOT_FOUND").
			With("node", n.String()).
			Wrap(ErrNodeNotFound)
	}
	return nil
}

func (b *base) UnsetTransientNode(n node.Node) error {
	if !b.transient.remove(n) {
		return oops.In("holder").
			Code("NODE_NOT_FOUND").
			With("node", n.String()).
			Wrap(ErrNodeNotFound)
	}
	return nil
}

// ReplaceNode swaps the enduring node equivalent to old for replacement in a
// single atomic step. No concurrent reader observes a state with neither
// node present (promotion relies on this).
func (b *base) ReplaceNode(old, replacement node.Node) error {
	if !b.enduring.replace(old, replacement) {
		return oops.In("holder").
			Code("NODE_NOT_FOUND").
			With("node", old.String()).
			Wrap(ErrNodeNotFound)
	}
	return nil
}

func (b *base) ClearNodes() []node.Node { return b.enduring.clear() }

func (b *base) SetNodes(ns []node.Node) { b.enduring.replaceAll(ns) }

// AuditTemporaryNodes removes enduring nodes whose expiry has passed at the
// given instant and returns them. Resolution already skips expired nodes;
// this reclaims the storage and reports what was dropped.
func (b *base) AuditTemporaryNodes(at time.Time) []node.Node {
	return b.enduring.removeIf(func(n node.Node) bool {
		return n.HasExpired(at)
	})
}
