// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package inheritance flattens a holder's permission graph.
//
// Resolution walks the membership graph breadth-first: the holder's own nodes
// sit at distance 0, a group it belongs to contributes its nodes at distance
// 1, that group's parents at distance 2, and so on. The walk filters each
// node for applicability against the query context and orders the survivors
// so the first entry for a permission key is its effective value.
package inheritance

import (
	"log/slog"
	"sort"
	"time"

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/holder"
	"github.com/permforge/permforge/internal/node"
)

// Entry is one applicable node together with how far from the queried holder
// it was found.
type Entry struct {
	Node     node.Node
	Distance int
}

// Result is the flattened, priority-ordered node list for one
// (holder, context) pair.
type Result struct {
	// Entries in resolution priority order, highest first.
	Entries []Entry

	// Touched lists every group name the walk consulted, loaded or not.
	// The cache uses it as a reverse dependency index for invalidation.
	Touched []string
}

// GroupSource supplies loaded groups by name. *holder.GroupManager satisfies
// it; an unloaded group resolves to nil and its subtree is skipped.
type GroupSource interface {
	IfLoaded(name string) *holder.Group
}

// Resolver walks the inheritance graph. Stateless and safe for concurrent
// use; all state lives in the holders and the group source.
type Resolver struct {
	groups GroupSource
}

// NewResolver creates a resolver over the given group source.
func NewResolver(groups GroupSource) *Resolver {
	return &Resolver{groups: groups}
}

type queued struct {
	h        holder.Holder
	distance int
}

// Resolve flattens h's own and inherited nodes applicable in the query
// context at the given instant.
//
// Priority order of the returned entries: shallower distance first; at equal
// distance, nodes with any context/server/world scoping before unscoped ones
// (more specific wins); insertion order as the final tie-break. Groups
// already visited are skipped, so cyclic membership graphs terminate and each
// group's nodes are applied exactly once.
func (r *Resolver) Resolve(h holder.Holder, query contexts.ImmutableContextSet, at time.Time) Result {
	visited := make(map[string]struct{})
	if g, ok := h.(*holder.Group); ok {
		visited[g.Name()] = struct{}{}
	}

	var entries []Entry
	var touched []string

	queue := []queued{{h: h, distance: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, n := range cur.h.Nodes() {
			if !n.Applicable(query, at) {
				continue
			}
			entries = append(entries, Entry{Node: n, Distance: cur.distance})

			if !n.IsGroupNode() || !n.Value() {
				continue
			}
			name := n.GroupName()
			if _, seen := visited[name]; seen {
				continue
			}
			visited[name] = struct{}{}
			touched = append(touched, name)

			parent := r.groups.IfLoaded(name)
			if parent == nil {
				// Membership in a group that is not loaded contributes
				// nothing; the cache still records the dependency so a later
				// load invalidates correctly.
				slog.Debug("skipping unloaded group during resolution",
					"holder", cur.h.Identifier(),
					"group", name)
				continue
			}
			queue = append(queue, queued{h: parent, distance: cur.distance + 1})
		}
	}

	// Stable sort keeps BFS/insertion order as the final tie-break.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Distance != entries[j].Distance {
			return entries[i].Distance < entries[j].Distance
		}
		return specificity(entries[i].Node) > specificity(entries[j].Node)
	})

	return Result{Entries: entries, Touched: touched}
}

// specificity ranks a node's scoping: anything context-, server-, or
// world-scoped outranks a fully global node at the same distance.
func specificity(n node.Node) int {
	if !n.Context().IsEmpty() || n.Server() != "" || n.World() != "" {
		return 1
	}
	return 0
}
