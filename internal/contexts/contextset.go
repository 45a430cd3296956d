// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

// Package contexts provides the context-set model used to scope permission
// nodes and permission queries.
//
// A context set maps context keys ("server", "world", ...) to one or more
// accepted values. The empty set is global: it applies everywhere. Frozen
// (immutable) sets are used as cache keys; the mutable variant is a builder
// used while assembling a query's context before freezing.
package contexts

import (
	"sort"
	"strings"
)

// Well-known context keys. Nodes additionally carry dedicated server/world
// scoping fields, but the query context expresses the current server and
// world through these keys.
const (
	KeyServer = "server"
	KeyWorld  = "world"
)

// ImmutableContextSet is a frozen context set. The zero value is the empty
// (global) set. Values are safe for concurrent use and for map keys via Key().
type ImmutableContextSet struct {
	// entries maps key -> sorted accepted values. nil for the empty set.
	entries map[string][]string
	// key is the canonical encoding, computed once at freeze time.
	key string
}

// Empty is the global context set.
var Empty = ImmutableContextSet{}

// Of builds an immutable set from alternating key/value pairs.
// Panics on an odd number of arguments (programmer error).
func Of(pairs ...string) ImmutableContextSet {
	if len(pairs)%2 != 0 {
		panic("contexts.Of: odd number of key/value arguments")
	}
	m := NewMutable()
	for i := 0; i < len(pairs); i += 2 {
		m.Add(pairs[i], pairs[i+1])
	}
	return m.Immutable()
}

// IsEmpty reports whether the set is global (no constraints).
func (s ImmutableContextSet) IsEmpty() bool {
	return len(s.entries) == 0
}

// Size returns the number of key/value pairs.
func (s ImmutableContextSet) Size() int {
	n := 0
	for _, vs := range s.entries {
		n += len(vs)
	}
	return n
}

// Contains reports whether the set accepts value for key.
func (s ImmutableContextSet) Contains(key, value string) bool {
	key, value = normalize(key), normalize(value)
	for _, v := range s.entries[key] {
		if v == value {
			return true
		}
	}
	return false
}

// ContainsKey reports whether the set constrains key at all.
func (s ImmutableContextSet) ContainsKey(key string) bool {
	_, ok := s.entries[normalize(key)]
	return ok
}

// Values returns the accepted values for key, sorted. Nil if unconstrained.
func (s ImmutableContextSet) Values(key string) []string {
	vs := s.entries[normalize(key)]
	if vs == nil {
		return nil
	}
	out := make([]string, len(vs))
	copy(out, vs)
	return out
}

// Keys returns the constrained keys, sorted.
func (s ImmutableContextSet) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AnyValue returns one accepted value for key, or "" if unconstrained.
// Used where a single-valued key is expected (server, world).
func (s ImmutableContextSet) AnyValue(key string) string {
	vs := s.entries[normalize(key)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// SatisfiedBy reports whether this set's constraints hold in the given query
// context: every key here must have at least one of its accepted values
// present in the query. The empty set is satisfied by anything.
func (s ImmutableContextSet) SatisfiedBy(query ImmutableContextSet) bool {
	for k, want := range s.entries {
		have := query.entries[k]
		if !intersects(want, have) {
			return false
		}
	}
	return true
}

// Equal reports whether two sets accept exactly the same pairs.
func (s ImmutableContextSet) Equal(other ImmutableContextSet) bool {
	return s.Key() == other.Key()
}

// Key returns the canonical encoding of the set: sorted "key=value" pairs
// joined by ";". The empty set encodes as "". Stable across processes, so it
// doubles as a persistence format for node contexts.
func (s ImmutableContextSet) Key() string {
	return s.key
}

// String implements fmt.Stringer, returning "global" for the empty set.
func (s ImmutableContextSet) String() string {
	if s.IsEmpty() {
		return "global"
	}
	return s.key
}

// Mutable returns an unfrozen copy of the set.
func (s ImmutableContextSet) Mutable() *MutableContextSet {
	m := NewMutable()
	for k, vs := range s.entries {
		for _, v := range vs {
			m.Add(k, v)
		}
	}
	return m
}

// MutableContextSet assembles a context set before freezing. Not safe for
// concurrent use; freeze with Immutable() before sharing.
type MutableContextSet struct {
	entries map[string]map[string]struct{}
}

// NewMutable creates an empty mutable context set.
func NewMutable() *MutableContextSet {
	return &MutableContextSet{entries: make(map[string]map[string]struct{})}
}

// Add accepts value for key. Keys and values are case-folded. Empty keys or
// values are ignored; a context pair with a blank side scopes nothing.
func (m *MutableContextSet) Add(key, value string) *MutableContextSet {
	key, value = normalize(key), normalize(value)
	if key == "" || value == "" {
		return m
	}
	vs, ok := m.entries[key]
	if !ok {
		vs = make(map[string]struct{})
		m.entries[key] = vs
	}
	vs[value] = struct{}{}
	return m
}

// Remove drops value for key, removing the key entirely when its last value
// goes.
func (m *MutableContextSet) Remove(key, value string) *MutableContextSet {
	key, value = normalize(key), normalize(value)
	if vs, ok := m.entries[key]; ok {
		delete(vs, value)
		if len(vs) == 0 {
			delete(m.entries, key)
		}
	}
	return m
}

// RemoveAll drops every value for key.
func (m *MutableContextSet) RemoveAll(key string) *MutableContextSet {
	delete(m.entries, normalize(key))
	return m
}

// IsEmpty reports whether no pairs have been added.
func (m *MutableContextSet) IsEmpty() bool {
	return len(m.entries) == 0
}

// Immutable freezes the set. The builder may keep being used afterwards; the
// frozen set does not alias its storage.
func (m *MutableContextSet) Immutable() ImmutableContextSet {
	if len(m.entries) == 0 {
		return Empty
	}
	entries := make(map[string][]string, len(m.entries))
	for k, vs := range m.entries {
		values := make([]string, 0, len(vs))
		for v := range vs {
			values = append(values, v)
		}
		sort.Strings(values)
		entries[k] = values
	}
	return ImmutableContextSet{entries: entries, key: encode(entries)}
}

// ParseKey decodes a canonical Key() encoding back into a set. The inverse of
// ImmutableContextSet.Key; malformed pairs (no "=") are skipped.
func ParseKey(encoded string) ImmutableContextSet {
	if encoded == "" {
		return Empty
	}
	m := NewMutable()
	for _, pair := range strings.Split(encoded, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		m.Add(k, v)
	}
	return m.Immutable()
}

func encode(entries map[string][]string) string {
	pairs := make([]string, 0, len(entries))
	for k, vs := range entries {
		for _, v := range vs {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func intersects(want, have []string) bool {
	// Both slices are small and sorted; linear scan beats allocation.
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
