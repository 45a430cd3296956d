// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package caching memoizes inheritance resolution per (holder, context) pair
// so the hot permission-check path is a map lookup.
package caching

import (
	"log/slog"
	"strings"

	"github.com/gobwas/glob"

	"github.com/permforge/permforge/internal/contexts"
	"github.com/permforge/permforge/internal/inheritance"
	"github.com/permforge/permforge/internal/node"
)

// wildcardEntry is a compiled wildcard node that survived flattening, kept in
// resolver priority order.
type wildcardEntry struct {
	key   string
	g     glob.Glob
	value bool
}

// PermissionData is the finalized lookup structure for one (holder, context)
// pair. Immutable once built; lookups are lock-free.
type PermissionData struct {
	context contexts.ImmutableContextSet

	// exact maps fully resolved permission keys to their effective value.
	exact map[string]bool

	// wildcards, consulted after an exact miss, in priority order.
	wildcards []wildcardEntry

	// parents holds keys implied by granted descendants ("a.b.c" grants
	// imply "a.b" and "a"). Consulted last; implication only grants.
	parents map[string]struct{}
}

// BuildPermissionData flattens an ordered resolution result. The first entry
// for a key decides its value; wildcard expansion and parent implication
// happen at the winning node's priority, so a more specific explicit value
// always beats an implied or wildcard one.
func BuildPermissionData(query contexts.ImmutableContextSet, res inheritance.Result) *PermissionData {
	d := &PermissionData{
		context: query,
		exact:   make(map[string]bool, len(res.Entries)),
		parents: make(map[string]struct{}),
	}

	for _, e := range res.Entries {
		key := e.Node.Key()
		if _, decided := d.exact[key]; decided {
			continue
		}
		d.exact[key] = e.Node.Value()

		if e.Node.IsWildcard() {
			// Compiled without a separator: "a.b.*" matches arbitrarily deep
			// sub-permissions, matching how admins expect wildcards to work.
			g, err := glob.Compile(key)
			if err != nil {
				slog.Warn("skipping uncompilable wildcard node",
					"key", key, "error", err)
			} else {
				d.wildcards = append(d.wildcards, wildcardEntry{key: key, g: g, value: e.Node.Value()})
			}
		}

		if e.Node.Value() {
			for _, parent := range parentKeys(key) {
				d.parents[parent] = struct{}{}
			}
		}
	}

	return d
}

// Context returns the query context this data was computed for.
func (d *PermissionData) Context() contexts.ImmutableContextSet { return d.context }

// PermissionValue looks up a key: exact entries first, then wildcard entries
// in priority order, then parent implication, else Undefined.
func (d *PermissionData) PermissionValue(key string) node.Tristate {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return node.Undefined
	}

	if v, ok := d.exact[key]; ok {
		return node.TristateOf(v)
	}
	for _, w := range d.wildcards {
		if w.g.Match(key) {
			return node.TristateOf(w.value)
		}
	}
	if _, ok := d.parents[key]; ok {
		return node.True
	}
	return node.Undefined
}

// Effective returns a copy of the fully resolved key->value map, the backing
// of the host's effective-permissions dump. Wildcard and implied entries are
// not enumerated.
func (d *PermissionData) Effective() map[string]bool {
	out := make(map[string]bool, len(d.exact))
	for k, v := range d.exact {
		out[k] = v
	}
	return out
}

// parentKeys returns the ancestor keys of key: "a.b.c" -> ["a.b", "a"].
// Wildcard tails do not imply their root.
func parentKeys(key string) []string {
	if strings.HasSuffix(key, node.WildcardSuffix) {
		return nil
	}
	var out []string
	for {
		i := strings.LastIndexByte(key, '.')
		if i <= 0 {
			return out
		}
		key = key[:i]
		out = append(out, key)
	}
}
